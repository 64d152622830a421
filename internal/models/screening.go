package models

import "time"

// ScreeningType names a self-report instrument.
type ScreeningType string

const (
	ScreeningPHQ9 ScreeningType = "phq9"
	ScreeningGAD7 ScreeningType = "gad7"
)

// ScreeningResult is the scored outcome of a completed screening.
type ScreeningResult struct {
	ID             int64         `json:"id,omitempty" db:"id"`
	Type           ScreeningType `json:"type" db:"type"`
	Total          int           `json:"total" db:"total"`
	Severity       string        `json:"severity" db:"severity"`
	Feedback       string        `json:"feedback" db:"-"`
	FollowUp       string        `json:"follow_up" db:"-"`
	SuggestBooking bool          `json:"suggest_booking" db:"-"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}
