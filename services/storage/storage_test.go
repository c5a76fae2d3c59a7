package storagesvc

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/learninghub/core"
)

func TestMinioStore_presign(t *testing.T) {
	store, err := NewMinioStore(core.StorageConfig{
		Endpoint:  "s3.ap-southeast-1.amazonaws.com",
		Region:    "ap-southeast-1",
		Bucket:    "learninghub-test",
		AccessKey: "AKID",
		SecretKey: "secret",
		UseSSL:    true,
	})
	require.NoError(t, err)

	raw, err := store.PresignGet(context.Background(), "lectures/1-intro.mp4", time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.True(t, strings.HasSuffix(u.Path, "/lectures/1-intro.mp4"))
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("X-Amz-Credential"), "AKID/")
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))

	raw, err = store.PresignPut(context.Background(), "uploads/1-a.png", "image/png", 10*time.Minute)
	require.NoError(t, err)
	u, err = url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, strings.Split(u.Query().Get("X-Amz-SignedHeaders"), ";"), "content-type")

	raw, err = store.PresignPut(context.Background(), "uploads/1-a.png", "", 10*time.Minute)
	require.NoError(t, err)
	u, err = url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "host", u.Query().Get("X-Amz-SignedHeaders"))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("https://cdn.test")

	require.NoError(t, store.Put(ctx, "avatars/1-me.png", strings.NewReader("png"), 3, "image/png"))
	obj, ok := store.Get("avatars/1-me.png")
	require.True(t, ok)
	assert.Equal(t, []byte("png"), obj.Data)
	assert.Equal(t, "image/png", obj.ContentType)

	u, err := store.PresignGet(ctx, "avatars/1-me.png", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/avatars/1-me.png?method=GET&expires=3600", u)

	u, err = store.PresignPut(ctx, "uploads/1-notes.md", "text/markdown; charset=utf-8", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/uploads/1-notes.md?method=PUT&expires=60&contentType=text%2Fmarkdown%3B+charset%3Dutf-8", u)

	require.NoError(t, store.Delete(ctx, "avatars/1-me.png"))
	_, ok = store.Get("avatars/1-me.png")
	assert.False(t, ok)
}
