package domain

import (
	"mime"
	"strings"
)

// ViewerKind is the rendering strategy picked for a document.
type ViewerKind int

const (
	ViewerUnsupported ViewerKind = iota
	ViewerImage
	ViewerPDF
)

func (vk ViewerKind) String() string {
	switch vk {
	case ViewerImage:
		return "image"
	case ViewerPDF:
		return "pdf"
	default:
		return "unsupported"
	}
}

func (vk ViewerKind) MarshalText() ([]byte, error) {
	return []byte(vk.String()), nil
}

// Viewer carries what the selected strategy needs to render the document.
type Viewer struct {
	Kind       ViewerKind `json:"kind"`
	Name       string     `json:"name,omitempty"`
	BinaryLink string     `json:"binaryLink"`
	PageCount  int        `json:"pageCount,omitempty"`
}

// ClassifyMimeType maps every mime type to exactly one viewer. Parameters and case are ignored.
func ClassifyMimeType(mimeType string) ViewerKind {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return ViewerImage
	case mediaType == "application/pdf":
		return ViewerPDF
	default:
		return ViewerUnsupported
	}
}

// SelectViewer runs the classification for the metadata. The fallback viewer also gets the document name so the user
// can download it by hand.
func SelectViewer(metadata DocumentMetadata) Viewer {
	viewer := Viewer{
		Kind:       ClassifyMimeType(metadata.MimeType),
		BinaryLink: metadata.Links.Binary.Href,
	}
	if viewer.Kind == ViewerUnsupported {
		viewer.Name = metadata.OriginalDocumentName
	}
	return viewer
}
