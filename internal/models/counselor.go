package models

// Counselor is a bookable professional from the counselor catalog.
type Counselor struct {
	ID             int      `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	Specialization string   `json:"specialization" yaml:"specialization"`
	Languages      []string `json:"languages" yaml:"languages"`
	Experience     string   `json:"experience" yaml:"experience"`
	Availability   []string `json:"availability" yaml:"availability"`
	Rating         float64  `json:"rating" yaml:"rating"`
}
