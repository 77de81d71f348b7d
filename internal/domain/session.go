package domain

// NotesSnapshot is the state of a notes engine that outlives a single request.
type NotesSnapshot struct {
	DocumentURL string `json:"documentUrl"`
	Page        int    `json:"page"`
	AddLink     string `json:"addLink,omitempty"`
	Notes       []Note `json:"notes"`
	Dirty       bool   `json:"dirty,omitempty"`
}
