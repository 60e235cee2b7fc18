package transfer

const LinkedInUploadMechanism = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"

type LinkedInRegisterUploadRequest struct {
	RegisterUploadRequest LinkedInRegisterUpload `json:"registerUploadRequest"`
}

type LinkedInRegisterUpload struct {
	Recipes              []string                      `json:"recipes"`
	Owner                string                        `json:"owner"`
	ServiceRelationships []LinkedInServiceRelationship `json:"serviceRelationships"`
}

type LinkedInServiceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

type LinkedInRegisterUploadResponse struct {
	Value struct {
		UploadMechanism map[string]struct {
			UploadURL string            `json:"uploadUrl"`
			Headers   map[string]string `json:"headers"`
		} `json:"uploadMechanism"`
		Asset string `json:"asset"`
	} `json:"value"`
}

type LinkedInAssetStatus struct {
	Status  string `json:"status"`
	Recipes []struct {
		Recipe string `json:"recipe"`
		Status string `json:"status"`
	} `json:"recipes"`
}

type LinkedInUGCPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent LinkedInSpecificContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

type LinkedInSpecificContent struct {
	ShareContent LinkedInShareContent `json:"com.linkedin.ugc.ShareContent"`
}

type LinkedInShareContent struct {
	ShareCommentary    LinkedInText    `json:"shareCommentary"`
	ShareMediaCategory string          `json:"shareMediaCategory"`
	Media              []LinkedInMedia `json:"media,omitempty"`
}

type LinkedInMedia struct {
	Status      string       `json:"status"`
	Description LinkedInText `json:"description"`
	Media       string       `json:"media"`
	Title       LinkedInText `json:"title"`
}

type LinkedInText struct {
	Text string `json:"text"`
}

type LinkedInPostResponse struct {
	ID string `json:"id"`
}
