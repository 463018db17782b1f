package domain

type Message struct {
	ID       int
	ChatID   int64
	Username string
	ImageURL string
	Text     string
}

type Action string

const (
	Typing       Action = "typing"
	SendingPhoto Action = "upload_photo"
)

// Outcome reports how a transfer job for a user ended. Path is set on success, Err otherwise.
type Outcome struct {
	UserID int64
	Path   string
	Err    error
}

// PoolStats is a point-in-time view of the transfer worker pool.
type PoolStats struct {
	Workers   int
	Busy      int
	Queued    int
	QueueSize int
	Completed uint64
	Failed    uint64
	Rejected  uint64
}
