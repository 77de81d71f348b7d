package internal

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	ddHTTP "gopkg.in/DataDog/dd-trace-go.v1/contrib/net/http"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/hmcts/document-viewer/internal/config"
	"github.com/hmcts/document-viewer/internal/repository"
)

type datadogLogger struct {
	logger zerolog.Logger
}

func (dl datadogLogger) Log(msg string) {
	dl.logger.Info().Msg(msg)
}

func traceLogger(enabled bool) func(context.Context, zerolog.Logger) (zerolog.Logger, error) {
	return func(ctx context.Context, logger zerolog.Logger) (zerolog.Logger, error) {
		if !enabled {
			return logger, nil
		}

		span, ok := tracer.SpanFromContext(ctx)
		if !ok {
			return logger, errors.New("could not found a span inside the context")
		}

		traceLogger := logger.With().Fields(map[string]interface{}{
			"dd": map[string]uint64{
				"trace_id": span.Context().TraceID(),
				"span_id":  span.Context().SpanID(),
			},
		}).Logger()
		return traceLogger, nil
	}
}

// newHTTPClient is shared by the annotation, document and binary clients.
func newHTTPClient() *http.Client {
	httpClient := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	return ddHTTP.WrapClient(httpClient)
}

type sessionStore interface {
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader) error
	Delete(context.Context, string) error
	Close() error
}

// newSessionStore picks Redis, then S3 and at last the process memory.
func newSessionStore(logger zerolog.Logger, httpClient *http.Client, cfg config.Config) (sessionStore, error) {
	switch {
	case cfg.RedisURL != "":
		client, err := repository.NewRedisClient(cfg.RedisURL, cfg.RedisUsername, cfg.RedisPassword, cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
		return client, nil
	case cfg.SessionBucket != "":
		client := &repository.S3Client{HTTPClient: httpClient, Bucket: cfg.SessionBucket, Region: cfg.DefaultRegion}
		if err := client.Init(); err != nil {
			return nil, err
		}
		return client, nil
	default:
		logger.Warn().Msg("No Redis or S3 bucket configured, the sessions are kept at the process memory")
		return repository.NewMemoryClient(), nil
	}
}
