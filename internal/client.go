package internal

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/hmcts/document-viewer/internal/config"
	"github.com/hmcts/document-viewer/internal/repository"
	"github.com/hmcts/document-viewer/internal/service"
	"github.com/hmcts/document-viewer/internal/transport"
)

// Client holds the logic to bootstrap the application.
type Client struct {
	Logger            zerolog.Logger
	AsyncErrorHandler func(error)
	Config            config.Config

	httpClient       *http.Client
	storage          sessionStore
	server           transport.Server
	annotationClient repository.AnnotationClient
	documentClient   repository.DocumentClient
	serviceCipher    service.Cipher
	serviceSessions  service.Sessions
	serviceBinary    service.Binary
	serviceShell     service.Shell
}

// Init the client internal state.
func (c *Client) Init() (err error) {
	c.httpClient = newHTTPClient()

	if c.Config.EnableDatadog {
		tracer.Start(
			tracer.WithHTTPClient(c.httpClient),
			tracer.WithLogger(datadogLogger{logger: c.Logger}),
			tracer.WithRuntimeMetrics(),
		)
		defer func() {
			if err != nil {
				tracer.Stop()
			}
		}()
	}

	bucketRegions, err := c.Config.BucketRegions()
	if err != nil {
		return fmt.Errorf("fail to parse the storage bucket region: %w", err)
	}

	c.annotationClient.HTTPClient = c.httpClient
	c.annotationClient.BaseURL = c.Config.AnnotationBaseURL
	if err := c.annotationClient.Init(); err != nil {
		return fmt.Errorf("fail to initialize the annotation client: %w", err)
	}

	c.documentClient.HTTPClient = c.httpClient
	if err := c.documentClient.Init(); err != nil {
		return fmt.Errorf("fail to initialize the document client: %w", err)
	}

	c.storage, err = newSessionStore(c.Logger, c.httpClient, c.Config)
	if err != nil {
		return fmt.Errorf("fail to initialize the session storage: %w", err)
	}
	defer func() {
		if err != nil {
			_ = c.storage.Close()
		}
	}()

	c.serviceSessions.Storage = c.storage
	if c.Config.SessionSecret != "" {
		c.serviceCipher.Secret = c.Config.SessionSecret
		c.serviceCipher.Storage = c.storage
		if err := c.serviceCipher.Init(); err != nil {
			return fmt.Errorf("fail to initialize service cipher: %w", err)
		}
		c.serviceSessions.Storage = c.serviceCipher
	}
	c.serviceSessions.Gateway = c.annotationClient
	c.serviceSessions.Logger = c.Logger
	c.serviceSessions.SerializeSaves = c.Config.SerializeSaves
	c.serviceSessions.CacheSize = c.Config.SessionCacheSize
	if err := c.serviceSessions.Init(); err != nil {
		return fmt.Errorf("fail to initialize service sessions: %w", err)
	}

	c.serviceBinary.HTTPClient = c.httpClient
	c.serviceBinary.Logger = c.Logger
	c.serviceBinary.URLSigningSecret = c.Config.URLSigningSecret
	c.serviceBinary.StorageBucketRegion = bucketRegions
	c.serviceBinary.DefaultRegion = c.Config.DefaultRegion
	c.serviceBinary.CacheSize = c.Config.BinaryCacheSize
	c.serviceBinary.CacheMaxBytes = c.Config.BinaryCacheMaxBytes
	if err := c.serviceBinary.Init(); err != nil {
		return fmt.Errorf("fail to initialize service binary: %w", err)
	}

	c.serviceShell.Documents = c.documentClient
	c.serviceShell.Sessions = &c.serviceSessions
	c.serviceShell.Binary = &c.serviceBinary
	c.serviceShell.ProxyBinaries = c.Config.ProxyBinaries
	c.serviceShell.Logger = c.Logger
	if err := c.serviceShell.Init(); err != nil {
		return fmt.Errorf("fail to initialize service shell: %w", err)
	}

	c.server.Logger = c.Logger
	c.server.AsyncErrorHandler = c.AsyncErrorHandler
	c.server.TraceExtractor = traceLogger(c.Config.EnableDatadog)
	c.server.Shell = &c.serviceShell
	c.server.Sessions = &c.serviceSessions
	if c.Config.ProxyBinaries {
		c.server.Binary = &c.serviceBinary
	}
	c.server.Addr = c.Config.HTTPAddr
	if err := c.server.Init(); err != nil {
		return fmt.Errorf("fail to initialize the transport server: %w", err)
	}

	return nil
}

// Start the client.
func (c *Client) Start() {
	c.server.Start()
}

// Stop the client.
func (c *Client) Stop(ctx context.Context) error {
	defer tracer.Stop()
	if err := c.server.Stop(ctx); err != nil {
		return fmt.Errorf("fail to stop the server: %w", err)
	}
	if err := c.storage.Close(); err != nil {
		return fmt.Errorf("fail to close the session storage: %w", err)
	}
	return nil
}
