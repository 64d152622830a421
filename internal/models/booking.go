package models

import "time"

// Booking is a confirmed counselor session.
type Booking struct {
	ID          int64     `json:"id" db:"id"`
	CounselorID int       `json:"counselor_id" db:"counselor_id"`
	Date        string    `json:"date" db:"date"` // YYYY-MM-DD
	Time        string    `json:"time" db:"time"` // HH:MM
	Name        string    `json:"name" db:"name"`
	Contact     string    `json:"contact,omitempty" db:"contact"`
	Notes       string    `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
