package models

// Resource is an entry in the self-help resource library.
type Resource struct {
	ID          int     `json:"id" yaml:"id"`
	Title       string  `json:"title" yaml:"title"`
	Category    string  `json:"category" yaml:"category"`
	Type        string  `json:"type" yaml:"type"` // audio, video, pdf
	Duration    string  `json:"duration,omitempty" yaml:"duration"`
	Language    string  `json:"language" yaml:"language"`
	Description string  `json:"description" yaml:"description"`
	Rating      float64 `json:"rating" yaml:"rating"`
}

// ResourceFilter narrows the resource library. Empty fields match everything.
type ResourceFilter struct {
	Category string
	Language string
	Search   string
}
