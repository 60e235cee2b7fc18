package transfer

type XMediaUploadResponse struct {
	Data   XMediaData `json:"data"`
	Errors []XError   `json:"errors"`
}

type XMediaData struct {
	ID               string           `json:"id"`
	MediaKey         string           `json:"media_key"`
	ExpiresAfterSecs int              `json:"expires_after_secs"`
	Size             int64            `json:"size"`
	ProcessingInfo   *XProcessingInfo `json:"processing_info,omitempty"`
}

type XProcessingInfo struct {
	State           string            `json:"state"`
	CheckAfterSecs  int               `json:"check_after_secs"`
	ProgressPercent int               `json:"progress_percent"`
	Error           *XProcessingError `json:"error,omitempty"`
}

type XProcessingError struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type XError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Status int    `json:"status"`
}

type XTweetRequest struct {
	Text  string       `json:"text"`
	Media *XTweetMedia `json:"media,omitempty"`
}

type XTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type XTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Errors []XError `json:"errors"`
}
