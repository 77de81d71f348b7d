package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/hmcts/document-viewer/internal/domain"
)

// ErrMissingAnnotationSet is returned when a new note is saved without an annotation set to add it to.
var ErrMissingAnnotationSet = errors.New("missing annotation set to add the note to")

// AnnotationClient talks to the annotation service. It holds no state between calls.
type AnnotationClient struct {
	HTTPClient *http.Client
	BaseURL    string

	base string
}

// Init the client internal state.
func (ac *AnnotationClient) Init() error {
	if ac.HTTPClient == nil {
		return errors.New("internal/repository/AnnotationClient.HTTPClient can't be nil")
	}
	if ac.BaseURL == "" {
		return errors.New("internal/repository/AnnotationClient.BaseURL can't be empty")
	}
	if _, err := url.Parse(ac.BaseURL); err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	ac.base = strings.TrimSuffix(ac.BaseURL, "/")
	return nil
}

// FetchAnnotationSets returns every annotation set attached to the document.
func (ac AnnotationClient) FetchAnnotationSets(ctx context.Context, documentURL string) (_ []domain.AnnotationSet, err error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "internal/repository/AnnotationClient.FetchAnnotationSets")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	query := url.Values{}
	query.Set("url", documentURL)
	endpoint := ac.base + "/annotation-sets/find-all-by-document-url?" + query.Encode()

	payload, err := do(ctx, ac.HTTPClient, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch the annotation sets: %w", err)
	}

	var resp struct {
		Embedded struct {
			AnnotationSets []domain.AnnotationSet `json:"annotationSets"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("fail to unmarshal the annotation sets: %w", err)
	}
	span.SetTag("annotationSets", len(resp.Embedded.AnnotationSets))
	return resp.Embedded.AnnotationSets, nil
}

// CreateAnnotationSet creates an empty annotation set for the document.
func (ac AnnotationClient) CreateAnnotationSet(ctx context.Context, documentURL string) (_ domain.AnnotationSet, err error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "internal/repository/AnnotationClient.CreateAnnotationSet")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	body := struct {
		DocumentURI string `json:"documentUri"`
	}{DocumentURI: documentURL}
	payload, err := do(ctx, ac.HTTPClient, http.MethodPost, ac.base+"/annotation-sets", body)
	if err != nil {
		return domain.AnnotationSet{}, fmt.Errorf("fail to create the annotation set: %w", err)
	}

	var set domain.AnnotationSet
	if err := json.Unmarshal(payload, &set); err != nil {
		return domain.AnnotationSet{}, fmt.Errorf("fail to unmarshal the annotation set: %w", err)
	}
	if set.Links.AddAnnotation.Href == "" && set.Links.Self.Href != "" {
		set.Links.AddAnnotation.Href = strings.TrimSuffix(set.Links.Self.Href, "/") + "/annotation"
	}
	return set, nil
}

// SaveNote persists the note. A note without a self link is created through addLink, otherwise the resource at the
// self link is updated. The returned note carries the identity assigned by the server, when the server sends one back.
func (ac AnnotationClient) SaveNote(ctx context.Context, addLink string, note domain.Note) (_ domain.Note, err error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "internal/repository/AnnotationClient.SaveNote")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	method, endpoint := http.MethodPut, note.SelfLink
	if !note.Persisted() {
		if addLink == "" {
			return note, ErrMissingAnnotationSet
		}
		method, endpoint = http.MethodPost, addLink
	}
	span.SetTag("method", method)

	payload, err := do(ctx, ac.HTTPClient, method, endpoint, newAnnotationRequest(note))
	if err != nil {
		return note, fmt.Errorf("fail to save the note of page %d: %w", note.Page, err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return note, nil
	}

	var saved domain.Annotation
	if err := json.Unmarshal(payload, &saved); err != nil {
		return note, fmt.Errorf("fail to unmarshal the saved note: %w", err)
	}
	if saved.UUID != "" {
		note.RemoteID = saved.UUID
	}
	if saved.Links.Self.Href != "" {
		note.SelfLink = saved.Links.Self.Href
	}
	return note, nil
}

type annotationRequest struct {
	UUID     string                     `json:"uuid,omitempty"`
	Page     int                        `json:"page"`
	Type     string                     `json:"type"`
	Comments []domain.AnnotationComment `json:"comments"`
}

func newAnnotationRequest(note domain.Note) annotationRequest {
	annotation := note.Annotation()
	return annotationRequest{
		UUID:     annotation.UUID,
		Page:     annotation.Page,
		Type:     annotation.Type,
		Comments: annotation.Comments,
	}
}
