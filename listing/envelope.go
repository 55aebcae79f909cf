// Package listing answers "which posts go on the homepage". It runs a cascade
// of query strategies against the document store under a hard deadline and
// always produces exactly one well-formed Envelope.
package listing

// ContentRecord is the caller-facing shape of one post. ID and Title are
// always set.
type ContentRecord struct {
	ID          string       `json:"_id"`
	Title       string       `json:"title"`
	Slug        string       `json:"slug"`
	Content     string       `json:"content"`
	BannerImage string       `json:"bannerImage"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`
	Category    *CategoryRef `json:"category"`
}

// CategoryRef is the category embedded in a ContentRecord.
type CategoryRef struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// Envelope is the listing response body.
type Envelope struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	FrontPagePosts []ContentRecord `json:"frontPagePosts"`
	TrendingPosts  []ContentRecord `json:"trendingPosts"`
	Debug          *Diagnostics    `json:"debug,omitempty"`
}

// Messages sent to callers.
const (
	MsgFound         = "Posts fetched successfully"
	MsgSample        = "No posts matched the listing filters; showing an unfiltered sample"
	MsgEmptyStore    = "No posts found in the database"
	MsgNoMatch       = "No posts available yet"
	MsgTimeout       = "Request timed out while loading posts"
	MsgConnectFailed = "Database connection failed"
	MsgUnexpected    = "Unexpected error while loading posts"
)

const (
	placeholderTitle    = "Untitled"
	placeholderCategory = "Uncategorized"
)

// degraded returns an unsuccessful envelope with empty lists.
func degraded(msg string) Envelope {
	return Envelope{
		Success:        false,
		Message:        msg,
		FrontPagePosts: []ContentRecord{},
		TrendingPosts:  []ContentRecord{},
	}
}

// split divides records into the front page and the trending list.
func split(records []ContentRecord, frontPage int) (front, trending []ContentRecord) {
	if frontPage > len(records) {
		frontPage = len(records)
	}
	front = append([]ContentRecord{}, records[:frontPage]...)
	rest := records[frontPage:]
	if len(rest) > frontPage {
		rest = rest[:frontPage]
	}
	trending = append([]ContentRecord{}, rest...)
	return front, trending
}

// withArrays guarantees both lists marshal as JSON arrays.
func (e Envelope) withArrays() Envelope {
	if e.FrontPagePosts == nil {
		e.FrontPagePosts = []ContentRecord{}
	}
	if e.TrendingPosts == nil {
		e.TrendingPosts = []ContentRecord{}
	}
	return e
}
