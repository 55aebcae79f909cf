package frontpage

// apiResponse is the body of every authoring and session response.
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PostInput is the JSON body accepted by POST /api/posts.
type PostInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Slug        string `json:"slug" validate:"omitempty,max=200"`
	Content     string `json:"content" validate:"required"`
	BannerImage string `json:"bannerImage" validate:"omitempty,max=500"`
	Category    string `json:"category" validate:"omitempty,max=64"`
	Language    string `json:"language" validate:"omitempty,alpha,min=2,max=8"`
	Location    string `json:"location" validate:"omitempty,max=64"`
	Visibility  string `json:"visibility" validate:"omitempty,oneof=public private"`
	Published   *bool  `json:"isPublished"`
}

// LoginInput is the JSON body accepted by POST /api/session.
type LoginInput struct {
	Password string `json:"password" validate:"required"`
}

// SessionInfo describes the caller's session.
type SessionInfo struct {
	Authenticated bool   `json:"authenticated"`
	CSRFToken     string `json:"csrfToken"`
}

// Banner is the metadata of an uploaded banner image.
type Banner struct {
	URL          string `json:"url"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Size         int    `json:"size"`
}
