package transfer

type InstagramContainerRequest struct {
	ImageURL    string `json:"image_url,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
	MediaType   string `json:"media_type,omitempty"`
	Caption     string `json:"caption"`
	AccessToken string `json:"access_token"`
}

type InstagramPublishRequest struct {
	CreationID  string `json:"creation_id"`
	AccessToken string `json:"access_token"`
}

// InstagramContainerStatus is the container status field set; StatusCode is
// one of EXPIRED, ERROR, FINISHED, IN_PROGRESS or PUBLISHED.
type InstagramContainerStatus struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

type InstagramPermalink struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink"`
}
