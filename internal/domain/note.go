package domain

// Note is the annotation attached to a single page. An empty RemoteID or SelfLink means the note was never persisted.
type Note struct {
	RemoteID string `json:"remoteId"`
	Content  string `json:"content"`
	SelfLink string `json:"selfLink"`
	Page     int    `json:"page"`
}

// NewNote returns a blank note stamped with the page.
func NewNote(page int) Note {
	return Note{Page: page}
}

// Empty is true when no content was authored.
func (n Note) Empty() bool {
	return n.Content == ""
}

// Persisted is true once the annotation service has a resource for the note.
func (n Note) Persisted() bool {
	return n.SelfLink != ""
}

// NoteFromAnnotation projects a page note annotation. The content comes from the first comment and a missing page
// defaults to 1.
func NoteFromAnnotation(annotation Annotation) Note {
	note := Note{
		RemoteID: annotation.UUID,
		SelfLink: annotation.Links.Self.Href,
		Page:     annotation.Page,
	}
	if note.Page <= 0 {
		note.Page = 1
	}
	if len(annotation.Comments) > 0 {
		note.Content = annotation.Comments[0].Content
	}
	return note
}

// ProjectNotes flattens every set and projects the page notes, in the order the service returned them.
func ProjectNotes(sets []AnnotationSet) []Note {
	var result []Note
	for _, set := range sets {
		for _, annotation := range set.PageNotes() {
			result = append(result, NoteFromAnnotation(annotation))
		}
	}
	return result
}

// Annotation converts the note back into the wire shape used to create or update it.
func (n Note) Annotation() Annotation {
	page := n.Page
	if page <= 0 {
		page = 1
	}
	return Annotation{
		UUID:     n.RemoteID,
		Page:     page,
		Type:     AnnotationTypePageNote,
		Comments: []AnnotationComment{{Content: n.Content}},
	}
}
