package domain

import (
	"encoding/json"
	"fmt"
)

// AnnotationTypePageNote tags the annotations that hold a per-page note.
const AnnotationTypePageNote = "PAGENOTE"

// Link is a HAL link. The annotation service emits both the `{"href": "..."}` form and a bare string, so both decode.
type Link struct {
	Href string `json:"href"`
}

func (l *Link) UnmarshalJSON(payload []byte) error {
	var href string
	if err := json.Unmarshal(payload, &href); err == nil {
		l.Href = href
		return nil
	}

	var raw struct {
		Href string `json:"href"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return fmt.Errorf("invalid link: %w", err)
	}
	l.Href = raw.Href
	return nil
}

type AnnotationComment struct {
	Content string `json:"content"`
}

type AnnotationLinks struct {
	Self Link `json:"self"`
}

type Annotation struct {
	UUID     string              `json:"uuid,omitempty"`
	Page     int                 `json:"page"`
	Type     string              `json:"type"`
	Comments []AnnotationComment `json:"comments"`
	Links    AnnotationLinks     `json:"_links"`
}

type AnnotationSetLinks struct {
	Self          Link `json:"self"`
	AddAnnotation Link `json:"add-annotation"`
}

type AnnotationSet struct {
	UUID        string             `json:"uuid"`
	DocumentURI string             `json:"documentUri,omitempty"`
	Annotations []Annotation       `json:"annotations"`
	Links       AnnotationSetLinks `json:"_links"`
}

// PageNotes returns the annotations of the set tagged as page notes.
func (as AnnotationSet) PageNotes() []Annotation {
	result := make([]Annotation, 0, len(as.Annotations))
	for _, annotation := range as.Annotations {
		if annotation.Type == AnnotationTypePageNote {
			result = append(result, annotation)
		}
	}
	return result
}

type DocumentLinks struct {
	Binary Link `json:"binary"`
}

// DocumentMetadata is what the document store answers for a document url.
type DocumentMetadata struct {
	MimeType             string        `json:"mimeType"`
	OriginalDocumentName string        `json:"originalDocumentName"`
	Links                DocumentLinks `json:"_links"`
}
