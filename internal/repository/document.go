package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/hmcts/document-viewer/internal/domain"
)

// DocumentClient fetches document metadata from the document store.
type DocumentClient struct {
	HTTPClient *http.Client
}

// Init the client internal state.
func (dc *DocumentClient) Init() error {
	if dc.HTTPClient == nil {
		return errors.New("internal/repository/DocumentClient.HTTPClient can't be nil")
	}
	return nil
}

// FetchMetadata fetches the metadata of the document. A non 2xx answer is returned as StatusError.
func (dc DocumentClient) FetchMetadata(ctx context.Context, documentURL string) (_ domain.DocumentMetadata, err error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "internal/repository/DocumentClient.FetchMetadata")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	payload, err := do(ctx, dc.HTTPClient, http.MethodGet, documentURL, nil)
	if err != nil {
		return domain.DocumentMetadata{}, fmt.Errorf("fail to fetch the document metadata: %w", err)
	}

	var metadata domain.DocumentMetadata
	if err := json.Unmarshal(payload, &metadata); err != nil {
		return domain.DocumentMetadata{}, fmt.Errorf("fail to unmarshal the document metadata: %w", err)
	}
	span.SetTag("mimeType", metadata.MimeType)
	return metadata, nil
}
