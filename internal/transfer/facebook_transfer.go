package transfer

// GraphIDResponse is returned by Graph API create calls (photos, feed, media, media_publish).
type GraphIDResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type GraphErrorResponse struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		IsTransient  bool   `json:"is_transient"`
		FbtraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

type FacebookAttachedMedia struct {
	MediaFbID string `json:"media_fbid"`
}
