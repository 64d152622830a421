package models

// Thread represents a forum thread.
type Thread struct {
	ID         int64  `json:"id" db:"id"`
	Title      string `json:"title" db:"title"`
	Category   string `json:"category" db:"category"`
	Author     string `json:"author" db:"author"`
	Timestamp  string `json:"timestamp" db:"-"`
	Message    string `json:"message" db:"message"`
	ReplyCount int    `json:"reply_count" db:"reply_count"`
}

// ThreadDetail is a thread together with its replies, oldest first.
type ThreadDetail struct {
	Thread  Thread  `json:"thread"`
	Replies []Reply `json:"replies"`
}
