package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	awstrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/aws/aws-sdk-go/aws"
	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const s3SessionPrefix = "sessions/"

// S3Client keeps the viewer sessions at a S3 bucket. Expiration is left to the bucket lifecycle rules.
type S3Client struct {
	HTTPClient *http.Client
	Bucket     string
	Region     string

	svc s3iface.S3API
}

// Init the client internal state.
func (c *S3Client) Init() error {
	if c.HTTPClient == nil {
		return errors.New("internal/repository/S3Client.HTTPClient can't be nil")
	}
	if c.Bucket == "" {
		return errors.New("internal/repository/S3Client.Bucket can't be empty")
	}
	if c.svc != nil {
		return nil
	}
	sess, err := session.NewSession(&aws.Config{HTTPClient: c.HTTPClient, Region: aws.String(c.Region)})
	if err != nil {
		return fmt.Errorf("fail to start a session: %w", err)
	}
	sess = awstrace.WrapSession(sess)
	c.svc = s3.New(sess, &aws.Config{HTTPClient: c.HTTPClient})
	return nil
}

// Get returns nil, without error, when there is nothing stored at the key.
func (c S3Client) Get(ctx context.Context, key string) (_ io.ReadCloser, err error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "internal/repository/S3Client.Get")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	object, err := c.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.Bucket),
		Key:    aws.String(s3SessionPrefix + key),
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok && (awsErr.Code() == s3.ErrCodeNoSuchKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("fail to fetch the object at the key '%s': %w", key, err)
	}
	return object.Body, nil
}

func (c S3Client) Put(ctx context.Context, key string, rawPayload io.Reader) (err error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "internal/repository/S3Client.Put")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	payload, err := io.ReadAll(rawPayload)
	if err != nil {
		return fmt.Errorf("fail to read the payload: %w", err)
	}

	_, err = c.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.Bucket),
		Key:    aws.String(s3SessionPrefix + key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return fmt.Errorf("fail to put the object at the key '%s': %w", key, err)
	}
	return nil
}

func (c S3Client) Delete(ctx context.Context, key string) (err error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "internal/repository/S3Client.Delete")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	_, err = c.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.Bucket),
		Key:    aws.String(s3SessionPrefix + key),
	})
	if err != nil {
		return fmt.Errorf("fail to delete the object at the key '%s': %w", key, err)
	}
	return nil
}

// Close has nothing to release, the HTTP client is shared.
func (S3Client) Close() error {
	return nil
}
