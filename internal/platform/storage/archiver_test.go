package storage

import (
	"context"
	"errors"
	"testing"
)

type stubObjectWriter struct {
	writeFn func(ctx context.Context, objectName, contentType string, payload []byte) error
}

func (s *stubObjectWriter) Write(ctx context.Context, objectName, contentType string, payload []byte) error {
	if s.writeFn == nil {
		return nil
	}
	return s.writeFn(ctx, objectName, contentType, payload)
}

func TestNewInvoiceArchiverValidatesDeps(t *testing.T) {
	if _, err := NewInvoiceArchiver(InvoiceArchiverDeps{Bucket: "b"}); !errors.Is(err, ErrArchiverInvalidInput) {
		t.Fatalf("expected invalid input for missing writer, got %v", err)
	}
	if _, err := NewInvoiceArchiver(InvoiceArchiverDeps{Writer: &stubObjectWriter{}}); !errors.Is(err, ErrArchiverInvalidInput) {
		t.Fatalf("expected invalid input for missing bucket, got %v", err)
	}
}

func TestArchiveWritesObjectAndReturnsURI(t *testing.T) {
	var gotName, gotContentType string
	var gotPayload []byte
	writer := &stubObjectWriter{
		writeFn: func(_ context.Context, objectName, contentType string, payload []byte) error {
			gotName = objectName
			gotContentType = contentType
			gotPayload = payload
			return nil
		},
	}

	archiver, err := NewInvoiceArchiver(InvoiceArchiverDeps{Writer: writer, Bucket: "zk-invoices"})
	if err != nil {
		t.Fatalf("NewInvoiceArchiver returned error: %v", err)
	}

	uri, err := archiver.Archive(context.Background(), "user-1", "order-9", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}

	if uri != "gs://zk-invoices/invoices/user-1/order-9.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	if gotName != "invoices/user-1/order-9.html" {
		t.Fatalf("unexpected object name %s", gotName)
	}
	if gotContentType != "text/html; charset=utf-8" {
		t.Fatalf("unexpected content type %s", gotContentType)
	}
	if string(gotPayload) != "<html></html>" {
		t.Fatalf("unexpected payload %q", gotPayload)
	}
}

func TestArchiveRejectsEmptyInput(t *testing.T) {
	archiver, err := NewInvoiceArchiver(InvoiceArchiverDeps{Writer: &stubObjectWriter{}, Bucket: "zk-invoices"})
	if err != nil {
		t.Fatalf("NewInvoiceArchiver returned error: %v", err)
	}

	if _, err := archiver.Archive(context.Background(), "", "order-9", []byte("x")); !errors.Is(err, ErrArchiverInvalidInput) {
		t.Fatalf("expected invalid input for missing user, got %v", err)
	}
	if _, err := archiver.Archive(context.Background(), "user-1", "order-9", nil); !errors.Is(err, ErrArchiverInvalidInput) {
		t.Fatalf("expected invalid input for empty document, got %v", err)
	}
}

func TestArchiveWrapsWriterErrors(t *testing.T) {
	writerErr := errors.New("bucket unavailable")
	writer := &stubObjectWriter{
		writeFn: func(context.Context, string, string, []byte) error { return writerErr },
	}

	archiver, err := NewInvoiceArchiver(InvoiceArchiverDeps{Writer: writer, Bucket: "zk-invoices"})
	if err != nil {
		t.Fatalf("NewInvoiceArchiver returned error: %v", err)
	}

	if _, err := archiver.Archive(context.Background(), "user-1", "order-9", []byte("x")); !errors.Is(err, writerErr) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}
