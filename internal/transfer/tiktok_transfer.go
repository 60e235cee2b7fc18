package transfer

type TiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

type TiktokCreatorInfoResponse struct {
	Data  TiktokCreatorInfo `json:"data"`
	Error TiktokError       `json:"error"`
}

type TiktokCreatorInfo struct {
	CreatorAvatarURL        string   `json:"creator_avatar_url"`
	CreatorUsername         string   `json:"creator_username"`
	CreatorNickname         string   `json:"creator_nickname"`
	PrivacyLevelOptions     []string `json:"privacy_level_options"`
	CommentDisabled         bool     `json:"comment_disabled"`
	DuetDisabled            bool     `json:"duet_disabled"`
	StitchDisabled          bool     `json:"stitch_disabled"`
	MaxVideoPostDurationSec int32    `json:"max_video_post_duration_sec"`
}

type VideoPostInfo struct {
	Title                 string `json:"title"`
	PrivacyLevel          string `json:"privacy_level"`
	DisableDuet           bool   `json:"disable_duet"`
	DisableComment        bool   `json:"disable_comment"`
	DisableStitch         bool   `json:"disable_stitch"`
	VideoCoverTimestampMs int    `json:"video_cover_timestamp_ms"`
}

type VideoSourceInfo struct {
	Source   string `json:"source"`
	VideoURL string `json:"video_url"`
}

type VideoUploadRequest struct {
	PostInfo   VideoPostInfo   `json:"post_info"`
	SourceInfo VideoSourceInfo `json:"source_info"`
}

type TikTokUploadResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error TiktokError `json:"error"`
}

type TiktokStatusRequest struct {
	PublishID string `json:"publish_id"`
}

type TiktokStatusResponse struct {
	Data struct {
		Status                   string  `json:"status"`
		FailReason               string  `json:"fail_reason"`
		PublicalyAvailablePostID []int64 `json:"publicaly_available_post_id"`
		UploadedBytes            int64   `json:"uploaded_bytes"`
		DownloadedBytes          int64   `json:"downloaded_bytes"`
	} `json:"data"`
	Error TiktokError `json:"error"`
}
