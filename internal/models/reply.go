package models

// Reply represents a reply within a forum thread.
// A reply-to annotation, when present, is part of Text as an "@author " prefix.
type Reply struct {
	ID        int64  `json:"id" db:"id"`
	ThreadID  int64  `json:"thread_id" db:"thread_id"`
	Author    string `json:"author" db:"author"`
	Text      string `json:"text" db:"text"`
	Timestamp string `json:"timestamp" db:"-"`
}
