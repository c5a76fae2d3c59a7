package upload

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/learninghub/core"
)

type storeMock struct {
	objects map[string][]byte
	deleted []string
}

func (s *storeMock) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *storeMock) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	return "https://signed.test/" + key + "?X-Amz-Expires=" + expiry.String(), nil
}

func (s *storeMock) PresignPut(_ context.Context, key, contentType string, _ time.Duration) (string, error) {
	return "https://signed.test/put/" + key + "?content-type=" + contentType, nil
}

func (s *storeMock) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

func TestKey(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	tests := []struct {
		prefix, filename, want string
	}{
		{"lectures", "intro.mp4", "lectures/1700000000123-intro.mp4"},
		{"avatars", "my photo (1).PNG", "avatars/1700000000123-my_photo__1_.PNG"},
		{"flashcards", "été/../x.jpg", "flashcards/1700000000123-_t__.._x.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.prefix, tt.filename, now))
		})
	}
}

func TestExtractKey(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"bare key", " avatars/1-a.png ", "avatars/1-a.png"},
		{"s3 url", "https://bucket.s3.ap-southeast-1.amazonaws.com/lectures/1-a.mp4", "lectures/1-a.mp4"},
		{"query dropped", "https://bucket.s3.amazonaws.com/lectures/1-a.mp4?X-Amz-Signature=abc", "lectures/1-a.mp4"},
		{"url decoded", "http://localhost:9000/avatars/1-my%20file.png", "avatars/1-my file.png"},
		{"decoded once", "http://localhost:9000/avatars/1-100%2525.png", "avatars/1-100%25.png"},
		{"escaped space kept", "https://bucket.s3.amazonaws.com/uploads/1-a%2520b.pdf", "uploads/1-a%20b.pdf"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKey(tt.in))
		})
	}
}

func TestService_URL(t *testing.T) {
	svc := NewService(&storeMock{}, core.StorageConfig{Bucket: "hub", Region: "ap-southeast-1"})
	assert.Equal(t, "https://hub.s3.ap-southeast-1.amazonaws.com/avatars/1-a.png", svc.URL("avatars/1-a.png"))
	assert.Equal(t, "https://cdn.test/x", svc.URL("https://cdn.test/x"))

	svc = NewService(&storeMock{}, core.StorageConfig{Bucket: "hub", PublicBaseURL: "http://localhost:9000/hub/"})
	assert.Equal(t, "http://localhost:9000/hub/avatars/1-a.png", svc.URL("avatars/1-a.png"))
}

func TestService_Upload(t *testing.T) {
	NowFunc = func() time.Time { return time.UnixMilli(42) }
	defer func() { NowFunc = time.Now }()

	store := &storeMock{objects: make(map[string][]byte)}
	svc := NewService(store, core.StorageConfig{Bucket: "hub", Region: "ap-southeast-1"})

	obj, err := svc.Upload(context.Background(), FolderAvatars, "me.png", "image/png", 3, bytes.NewReader([]byte("png")))
	require.NoError(t, err)
	assert.Equal(t, Object{
		Key:          "avatars/42-me.png",
		URL:          "https://hub.s3.ap-southeast-1.amazonaws.com/avatars/42-me.png",
		PresignedURL: "https://signed.test/avatars/42-me.png?X-Amz-Expires=1h0m0s",
		Size:         3,
		ContentType:  "image/png",
	}, obj)
	assert.Equal(t, []byte("png"), store.objects["avatars/42-me.png"])
}

func TestService_Delete(t *testing.T) {
	store := &storeMock{}
	svc := NewService(store, core.StorageConfig{Bucket: "hub"})

	require.NoError(t, svc.Delete(context.Background(), "https://hub.s3.amazonaws.com/lectures/1-a.mp4"))
	assert.Equal(t, []string{"lectures/1-a.mp4"}, store.deleted)
	assert.Equal(t, ErrMissingKey, svc.Delete(context.Background(), "  "))
}

func TestService_PresignedPutURL(t *testing.T) {
	NowFunc = func() time.Time { return time.UnixMilli(7) }
	defer func() { NowFunc = time.Now }()

	svc := NewService(&storeMock{}, core.StorageConfig{Bucket: "hub", Region: "eu-west-1"})
	up, err := svc.PresignedPutURL(context.Background(), "slides.pdf", "", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "uploads/7-slides.pdf", up.Key)
	assert.Equal(t, "https://signed.test/put/uploads/7-slides.pdf?content-type=application/pdf", up.UploadURL)
	assert.Equal(t, 3600, up.ExpiresIn)

	up, err = svc.PresignedPutURL(context.Background(), "a b.pdf", "/course docs/", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "course_docs/7-a_b.pdf", up.Key)
}

func TestExpiryFromSeconds(t *testing.T) {
	d, err := ExpiryFromSeconds(0, false)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	d, err = ExpiryFromSeconds(60, true)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	_, err = ExpiryFromSeconds(0, true)
	assert.Equal(t, ErrInvalidExpiry, err)
	_, err = ExpiryFromSeconds(MaxExpirySeconds+1, true)
	assert.Equal(t, ErrInvalidExpiry, err)
}
