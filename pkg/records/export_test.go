package records

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/haivivi/fieldstream/pkg/fieldx"
)

// apiError implements smithy.APIError.
type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// mockS3 is an in-memory S3 backend.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	if in.ContentType != nil {
		m.types[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, &apiError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func testRecord() *Record {
	return &Record{
		ID:        "abc",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Fields: []fieldx.Member{
			{Key: "title", Value: "Soup"},
			{Key: "steps", Value: []any{"boil", "serve"}},
		},
	}
}

func exportRoundTrip(t *testing.T, e *Exporter) {
	t.Helper()
	ctx := context.Background()
	r := testRecord()

	if ok, err := e.Exported(ctx, r.ID); err != nil || ok {
		t.Fatalf("Exported before export = %v, %v", ok, err)
	}
	if _, err := e.Load(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load missing = %v, want ErrNotFound", err)
	}
	if err := e.Export(ctx, r); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if ok, err := e.Exported(ctx, r.ID); err != nil || !ok {
		t.Fatalf("Exported after export = %v, %v", ok, err)
	}
	got, err := e.Load(ctx, r.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != r.ID || !got.CreatedAt.Equal(r.CreatedAt) || !fieldx.Equal(r.Values(), got.Values()) {
		t.Errorf("Load = %+v, want %+v", got, r)
	}
	if err := e.Remove(ctx, r.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := e.Remove(ctx, r.ID); err != nil {
		t.Fatalf("Remove twice: %v", err)
	}
}

func TestExportLocal(t *testing.T) {
	dir := t.TempDir()
	files, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	e := &Exporter{Files: files, Dir: "records"}
	exportRoundTrip(t, e)

	if err := e.Export(context.Background(), testRecord()); err != nil {
		t.Fatalf("Export: %v", err)
	}
	data, err := os.ReadFile(dir + "/records/abc.json")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(data), "{\n  \"id\": \"abc\"") || !strings.Contains(string(data), `"title": "Soup"`) {
		t.Errorf("export =\n%s", data)
	}
}

func TestExportS3(t *testing.T) {
	mock := newMockS3()
	e := &Exporter{Files: NewS3(mock, "bucket", "fieldstream"), Dir: "records"}
	exportRoundTrip(t, e)

	if err := e.Export(context.Background(), testRecord()); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, ok := mock.objects["fieldstream/records/abc.json"]; !ok {
		t.Errorf("objects = %v", mock.objects)
	}
	if ct := mock.types["fieldstream/records/abc.json"]; ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestExportS3PutError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	e := &Exporter{Files: NewS3(mock, "bucket", ""), Dir: ""}
	err := e.Export(context.Background(), testRecord())
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("err = %v", err)
	}
}

func TestS3WriteAfterClose(t *testing.T) {
	w, _ := NewS3(newMockS3(), "bucket", "").Write(context.Background(), "x")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("late")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("err = %v, want os.ErrClosed", err)
	}
}
