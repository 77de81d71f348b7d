package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/hmcts/document-viewer/internal/domain"
	"github.com/hmcts/document-viewer/internal/repository"
)

type shellDocumentClient interface {
	FetchMetadata(context.Context, string) (domain.DocumentMetadata, error)
}

type shellBinary interface {
	PageCount(context.Context, string) (int, error)
	SignedLink(string) string
}

// ViewError is the failure shown to the user when the document metadata can't be fetched.
type ViewError struct {
	StatusCode int    `json:"statusCode"`
	StatusText string `json:"statusText"`
}

// View is everything needed to render a document: its name, the selected viewer and the notes panel. When the
// metadata fetch fails only Error is set.
type View struct {
	DocumentURL string         `json:"documentUrl"`
	Name        string         `json:"name,omitempty"`
	Viewer      *domain.Viewer `json:"viewer,omitempty"`
	Page        int            `json:"page,omitempty"`
	Note        *domain.Note   `json:"note,omitempty"`
	Dirty       bool           `json:"dirty,omitempty"`
	Error       *ViewError     `json:"error,omitempty"`
}

// Shell fetches the document metadata, selects the viewer and hosts the notes of the session.
type Shell struct {
	Documents     shellDocumentClient
	Sessions      *Sessions
	Binary        shellBinary
	ProxyBinaries bool
	Logger        zerolog.Logger
}

// Init the internal state.
func (s *Shell) Init() error {
	if s.Documents == nil {
		return errors.New("internal/service/Shell.Documents can't be nil")
	}
	if s.Sessions == nil {
		return errors.New("internal/service/Shell.Sessions can't be nil")
	}
	if s.ProxyBinaries && s.Binary == nil {
		return errors.New("internal/service/Shell.Binary can't be nil when proxying binaries")
	}
	return nil
}

// Open builds the view of the document. The metadata fetch and the notes load run concurrently; a notes failure only
// leaves the notes blank. The returned error is reserved for failures of the session itself.
func (s *Shell) Open(ctx context.Context, sessionID, documentURL string) (_ View, err error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "internal/service/Shell.Open")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	view := View{DocumentURL: documentURL}
	var (
		metadata    domain.DocumentMetadata
		metadataErr error
		entry       *Session
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		metadata, metadataErr = s.Documents.FetchMetadata(groupCtx, documentURL)
		return nil
	})
	group.Go(func() error {
		var (
			result <-chan error
			err    error
		)
		entry, result, err = s.Sessions.Open(groupCtx, sessionID, documentURL)
		if err != nil {
			return err
		}
		select {
		case <-result:
		case <-groupCtx.Done():
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return View{}, fmt.Errorf("fail to open the session: %w", err)
	}

	if metadataErr != nil {
		s.Logger.Error().Err(metadataErr).Str("documentURL", documentURL).Msg("Fail to fetch the document metadata")
		view.Error = newViewError(metadataErr)
		return view, nil
	}

	viewer := domain.SelectViewer(metadata)
	if viewer.Kind == domain.ViewerPDF && s.Binary != nil && viewer.BinaryLink != "" {
		count, err := s.Binary.PageCount(ctx, viewer.BinaryLink)
		if err != nil {
			s.Logger.Warn().Err(err).Str("documentURL", documentURL).Msg("Fail to count the document pages")
		}
		viewer.PageCount = count
	}
	if s.ProxyBinaries && viewer.BinaryLink != "" {
		viewer.BinaryLink = s.Binary.SignedLink(viewer.BinaryLink)
	}

	note := entry.Notes.CurrentNote()
	view.Name = metadata.OriginalDocumentName
	view.Viewer = &viewer
	view.Page = entry.Notes.Page()
	view.Note = &note
	view.Dirty = entry.Edit.Dirty()
	return view, nil
}

func newViewError(err error) *ViewError {
	var se repository.StatusError
	if errors.As(err, &se) {
		return &ViewError{StatusCode: se.StatusCode, StatusText: se.StatusText}
	}
	return &ViewError{StatusText: "Unknown Error"}
}
