package api

// Backend routes
const (
	PathIdentityMe = "/identity/me"
	PathQueueItem  = "/items/queue"
	PathMemos      = "/memos"
)

// QueueRequest is the POST /items/queue body
type QueueRequest struct {
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	ItemID    string `json:"itemId,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
}

// QueueResponse is returned by a successful POST /items/queue
type QueueResponse struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
}

// MemoResponse is returned by a successful POST /memos
type MemoResponse struct {
	ID       string `json:"id,omitempty"`
	Filename string `json:"filename,omitempty"`
	Status   string `json:"status,omitempty"`
}
