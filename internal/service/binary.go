package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Nitro/urlsign"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	awstrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/aws/aws-sdk-go/aws"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace"
	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
	"rsc.io/pdf"
)

const (
	// BinaryPath is where the signed binary links point to.
	BinaryPath = "/binary"

	signingBucketSize = 8 * time.Hour
	maxBinarySize     = 100 << 20 // 100mb.
)

// Binary fetches the document binaries. It backs the binary proxy and the PDF page count.
//
// The cache is bounded by CacheSize entries and by CacheMaxBytes. A payload bigger than CacheMaxBytes is never cached.
// Without URLSigningSecret the proxy refuses every link, the page count still works.
type Binary struct {
	HTTPClient          *http.Client
	Logger              zerolog.Logger
	URLSigningSecret    string
	StorageBucketRegion map[string]string
	DefaultRegion       string
	CacheSize           int
	CacheMaxBytes       int64

	getS3Client func(string) (s3iface.S3API, error)
	s3Clients   map[string]s3iface.S3API
	mutex       sync.Mutex
	cache       *lru.Cache[string, []byte]
	cacheBytes  atomic.Int64
	group       singleflight.Group
}

// Init binary internal state.
func (b *Binary) Init() error {
	if b.HTTPClient == nil {
		return errors.New("internal/service/Binary.HTTPClient can't be nil")
	}
	if b.CacheSize <= 0 {
		return errors.New("internal/service/Binary.CacheSize must be bigger than zero")
	}
	if b.CacheMaxBytes <= 0 {
		return errors.New("internal/service/Binary.CacheMaxBytes must be bigger than zero")
	}
	if b.URLSigningSecret == "" {
		b.Logger.Warn().Msg("No URL signing secret was passed, the binary proxy is disabled")
	}
	if b.getS3Client == nil {
		b.getS3Client = b.getBucketS3Client
	}
	b.s3Clients = make(map[string]s3iface.S3API)

	cache, err := lru.NewWithEvict(b.CacheSize, func(_ string, payload []byte) {
		b.cacheBytes.Add(-int64(len(payload)))
	})
	if err != nil {
		return fmt.Errorf("fail to create the binary cache: %w", err)
	}
	b.cache = cache
	return nil
}

// SignedLink returns the proxy link for the binary at source.
func (b *Binary) SignedLink(source string) string {
	query := url.Values{}
	query.Set("src", source)
	link := BinaryPath + "?" + query.Encode()
	if b.URLSigningSecret == "" {
		return link
	}

	// The token covers the decoded query, that is what the validation rebuilds from the link.
	token := urlsign.GenerateToken(b.URLSigningSecret, signingBucketSize, time.Now().UTC(), BinaryPath+"?src="+source)
	return link + "&token=" + token
}

// Fetch returns the binary at source after checking that link is a signed link to it.
func (b *Binary) Fetch(ctx context.Context, link, source string) (_ []byte, err error) {
	span, ctx := b.startSpan(ctx, "Binary.Fetch")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	if b.URLSigningSecret == "" {
		return nil, newClientError(errors.New("binary proxy is disabled"))
	}
	location, err := url.Parse(link)
	if err != nil || location.Query().Get("src") != source {
		return nil, newClientError(errors.New("the link doesn't point to the source"))
	}
	if !urlsign.IsValidSignature(b.URLSigningSecret, signingBucketSize, time.Now().UTC(), link) {
		return nil, newClientError(errors.New("invalid token"))
	}
	return b.fetch(ctx, source)
}

// PageCount returns the quantity of pages of the PDF at source.
func (b *Binary) PageCount(ctx context.Context, source string) (_ int, err error) {
	span, ctx := b.startSpan(ctx, "Binary.PageCount")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	payload, err := b.fetch(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("fail to fetch the file: %w", err)
	}
	return countPages(payload)
}

func countPages(payload []byte) (count int, err error) {
	// rsc.io/pdf panics on some malformed documents.
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("fail to read the pdf: %v", rvr)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return 0, fmt.Errorf("fail to read the pdf: %w", err)
	}
	return reader.NumPage(), nil
}

func (b *Binary) fetch(ctx context.Context, source string) ([]byte, error) {
	if payload, ok := b.cache.Get(source); ok {
		return payload, nil
	}

	result, err, _ := b.group.Do(source, func() (interface{}, error) {
		payload, err := b.fetchFile(ctx, source)
		if err != nil {
			return nil, err
		}
		b.store(source, payload)
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (b *Binary) store(source string, payload []byte) {
	size := int64(len(payload))
	if size > b.CacheMaxBytes {
		return
	}
	if found, _ := b.cache.ContainsOrAdd(source, payload); found {
		return
	}
	if b.cacheBytes.Add(size) <= b.CacheMaxBytes {
		return
	}
	for b.cacheBytes.Load() > b.CacheMaxBytes {
		if _, _, ok := b.cache.RemoveOldest(); !ok {
			return
		}
	}
}

func (b *Binary) fetchFile(ctx context.Context, source string) (_ []byte, err error) {
	span, ctx := b.startSpan(ctx, "Binary.fetchFile")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	location, err := url.Parse(source)
	if err != nil {
		return nil, newClientError(fmt.Errorf("invalid source: %w", err))
	}

	switch location.Scheme {
	case "s3":
		return b.fetchFileFromS3(ctx, location.Host, strings.TrimPrefix(location.Path, "/"))
	case "http", "https":
		return b.fetchFileFromHTTP(ctx, source)
	default:
		return nil, newClientError(fmt.Errorf("unsupported source scheme '%s'", location.Scheme))
	}
}

func (b *Binary) fetchFileFromS3(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, newClientError(errors.New("invalid path"))
	}

	s3Client, err := b.getS3Client(bucket)
	if err != nil {
		return nil, fmt.Errorf("fail to get the s3 bucket client: %w", err)
	}

	output, err := s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok && (awsErr.Code() == s3.ErrCodeNoSuchKey) {
			return nil, newNotFoundError(err)
		}
		return nil, fmt.Errorf("fail to get object: %w", err)
	}
	defer output.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(output.Body, maxBinarySize))
	if err != nil {
		return nil, fmt.Errorf("fail to read the reader: %w", err)
	}
	return payload, nil
}

func (b *Binary) fetchFileFromHTTP(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("fail to create the HTTP request: %w", err)
	}

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fail to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, newNotFoundError(errors.New("binary returned 404"))
	} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("invalid status code '%d'", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBinarySize))
	if err != nil {
		return nil, fmt.Errorf("fail to read the body response: %w", err)
	}
	return payload, nil
}

func (*Binary) startSpan(ctx context.Context, operation string) (ddtrace.Span, context.Context) {
	return ddTracer.StartSpanFromContext(ctx, "internal/service/"+operation)
}

func (b *Binary) getBucketS3Client(bucket string) (s3iface.S3API, error) {
	region, ok := b.StorageBucketRegion[bucket]
	if !ok {
		if b.DefaultRegion == "" {
			return nil, fmt.Errorf("can't find the bucket '%s' region", bucket)
		}
		region = b.DefaultRegion
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	client, ok := b.s3Clients[region]
	if ok {
		return client, nil
	}

	sess, err := session.NewSession(&aws.Config{HTTPClient: b.HTTPClient, Region: &region})
	if err != nil {
		return nil, fmt.Errorf("fail to start a session on region '%s': %w", region, err)
	}
	sess = awstrace.WrapSession(sess)

	client = s3.New(sess, &aws.Config{HTTPClient: b.HTTPClient})
	b.s3Clients[region] = client
	return client, nil
}
