package queue

// Checkpoint is one chat's queue as written to disk before a shutdown.
type Checkpoint struct {
	ChatID    int64    `json:"chat_id"`
	ChatTitle string   `json:"chat_title"`
	Max       int      `json:"max,omitempty"`
	Tracks    []*Track `json:"tracks"`
}
