package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ErrArchiverInvalidInput indicates the archive request was malformed.
var ErrArchiverInvalidInput = errors.New("storage: invalid input")

// ObjectWriter abstracts the bucket write used when archiving rendered documents.
type ObjectWriter interface {
	Write(ctx context.Context, objectName, contentType string, payload []byte) error
}

// InvoiceArchiver persists rendered invoices into a Cloud Storage bucket keyed by order.
type InvoiceArchiver struct {
	writer ObjectWriter
	bucket string
}

// InvoiceArchiverDeps wires the collaborators required by the archiver.
type InvoiceArchiverDeps struct {
	Writer ObjectWriter
	Bucket string
}

// NewInvoiceArchiver validates dependencies and constructs an archiver.
func NewInvoiceArchiver(deps InvoiceArchiverDeps) (*InvoiceArchiver, error) {
	if deps.Writer == nil {
		return nil, fmt.Errorf("%w: writer is required", ErrArchiverInvalidInput)
	}
	if strings.TrimSpace(deps.Bucket) == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrArchiverInvalidInput)
	}
	return &InvoiceArchiver{
		writer: deps.Writer,
		bucket: strings.TrimSpace(deps.Bucket),
	}, nil
}

// Archive stores the rendered invoice HTML under invoices/{userID}/{orderID}.html.
func (a *InvoiceArchiver) Archive(ctx context.Context, userID, orderID string, html []byte) (string, error) {
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return "", fmt.Errorf("%w: user id and order id are required", ErrArchiverInvalidInput)
	}
	if len(html) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrArchiverInvalidInput)
	}

	objectName := fmt.Sprintf("invoices/%s/%s.html", userID, orderID)
	if err := a.writer.Write(ctx, objectName, "text/html; charset=utf-8", html); err != nil {
		return "", fmt.Errorf("storage: archive invoice %s: %w", orderID, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}

// BucketWriter writes objects into a single GCS bucket.
type BucketWriter struct {
	client *gcs.Client
	bucket string
}

// NewBucketWriter constructs a Cloud Storage client scoped to one bucket.
func NewBucketWriter(ctx context.Context, bucket string, opts ...option.ClientOption) (*BucketWriter, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrArchiverInvalidInput)
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: create client: %w", err)
	}
	return &BucketWriter{client: client, bucket: strings.TrimSpace(bucket)}, nil
}

// Write uploads the payload, overwriting any previous object with the same name.
func (w *BucketWriter) Write(ctx context.Context, objectName, contentType string, payload []byte) error {
	if strings.TrimSpace(objectName) == "" {
		return fmt.Errorf("%w: object name is required", ErrArchiverInvalidInput)
	}

	writer := w.client.Bucket(w.bucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return fmt.Errorf("storage: write object %s: %w", objectName, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("storage: finalize object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying client.
func (w *BucketWriter) Close() error {
	if w.client == nil {
		return nil
	}
	return w.client.Close()
}
