package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ryanakml/pdf-chatbots/config"
)

func TestLocalFetchCopiesIntoTempDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "uploads"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uploads", "a.pdf"), []byte("%PDF-1.4 body"), 0o644))

	path, err := NewLocal(dir).Fetch(context.Background(), "uploads/a.pdf")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(path) })

	assert.Equal(t, filepath.Join(os.TempDir(), "pdf"), filepath.Dir(path))
	assert.Equal(t, ".pdf", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))
}

func TestLocalFetchMissingObject(t *testing.T) {
	_, err := NewLocal(t.TempDir()).Fetch(context.Background(), "missing.pdf")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocalResolveStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	path, err := NewLocal(dir).resolve("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, dir))
}

func TestLocalURL(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewLocal(t.TempDir()).URL("a.pdf"), "file://"))
	assert.Empty(t, NewLocal(t.TempDir()).URL(""))
}

type fakeGetter struct {
	body string
	err  error
	key  string
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.key = *in.Key
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3FetchDownloadsObject(t *testing.T) {
	getter := &fakeGetter{body: "%PDF-1.7"}
	store := &S3{client: getter, bucket: "docs", region: "us-east-1"}

	path, err := store.Fetch(context.Background(), "uploads/x.pdf")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(path) })

	assert.Equal(t, "uploads/x.pdf", getter.key)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
}

func TestS3FetchError(t *testing.T) {
	store := &S3{client: &fakeGetter{err: errors.New("access denied")}, bucket: "docs"}

	path, err := store.Fetch(context.Background(), "x.pdf")
	assert.Empty(t, path)
	assert.ErrorContains(t, err, "access denied")
}

func TestS3URL(t *testing.T) {
	store := &S3{bucket: "docs", region: "ap-southeast-1"}
	assert.Equal(t, "https://docs.s3.ap-southeast-1.amazonaws.com/uploads/my%20file.pdf", store.URL("uploads/my file.pdf"))
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Backend: "ftp"})

	var cfgErr *config.ValidationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), config.StorageConfig{Backend: config.StorageS3})

	var cfgErr *config.ValidationError
	assert.True(t, errors.As(err, &cfgErr))
}
