package upload

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core"
)

// Upload folders.
const (
	FolderLectures   = "lectures"
	FolderAvatars    = "avatars"
	FolderFlashcards = "flashcards"
	FolderUploads    = "uploads"
)

const (
	MaxFileSize      = 500 << 20 // 500MB
	MaxFiles         = 10
	DefaultExpiry    = time.Hour
	MaxExpirySeconds = 604800 // 7 days
)

var (
	NowFunc = time.Now // mockable

	unsafeChars   = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	unsafeFolders = regexp.MustCompile(`[^a-zA-Z0-9/_-]`)

	// errors
	ErrMissingKey    = errors.New("s3 key is required")
	ErrInvalidExpiry = errors.New("expiresIn must be between 1 and 604800 seconds")
)

type (
	// ObjectStore is an S3 compatible bucket.
	ObjectStore interface {
		Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
		PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
		PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
		Delete(ctx context.Context, key string) error
	}

	Object struct {
		Key          string `json:"key"`
		URL          string `json:"url"`
		PresignedURL string `json:"presignedUrl"`
		Size         int64  `json:"size"`
		ContentType  string `json:"contentType"`
	}

	PresignedUpload struct {
		Key       string `json:"key"`
		UploadURL string `json:"uploadUrl"`
		URL       string `json:"url"`
		ExpiresIn int    `json:"expiresIn"`
	}

	Service struct {
		store         ObjectStore
		bucket        string
		region        string
		publicBaseURL string
	}
)

func NewService(store ObjectStore, conf core.StorageConfig) *Service {
	return &Service{
		store:         store,
		bucket:        conf.Bucket,
		region:        conf.Region,
		publicBaseURL: strings.TrimSuffix(conf.PublicBaseURL, "/"),
	}
}

// Key builds `prefix/<unix ms>-<sanitized filename>`.
func Key(prefix, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s", prefix, now.UnixMilli(), unsafeChars.ReplaceAllString(filename, "_"))
}

// ExtractKey accepts a bare key or an object URL and returns the object key.
func ExtractKey(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
		return v
	}
	u, err := url.Parse(v)
	if err != nil {
		return v
	}
	key := strings.TrimPrefix(u.EscapedPath(), "/")
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	return key
}

// URL is the public URL of key. Values that already are URLs are returned unchanged.
func (svc *Service) URL(key string) string {
	if strings.HasPrefix(key, "http") {
		return key
	}
	if svc.publicBaseURL != "" {
		return svc.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", svc.bucket, svc.region, key)
}

func (svc *Service) Upload(ctx context.Context, folder, filename, contentType string, size int64, r io.Reader) (Object, error) {
	key := Key(folder, filename, NowFunc())
	if err := svc.store.Put(ctx, key, r, size, contentType); err != nil {
		return Object{}, errors.Wrap(err, "putting object")
	}
	presigned, err := svc.store.PresignGet(ctx, key, DefaultExpiry)
	if err != nil {
		return Object{}, errors.Wrap(err, "presigning object")
	}
	return Object{
		Key:          key,
		URL:          svc.URL(key),
		PresignedURL: presigned,
		Size:         size,
		ContentType:  contentType,
	}, nil
}

// Delete removes the object named by a key or URL.
func (svc *Service) Delete(ctx context.Context, keyOrURL string) error {
	key := ExtractKey(keyOrURL)
	if key == "" {
		return ErrMissingKey
	}
	return errors.Wrap(svc.store.Delete(ctx, key), "deleting object")
}

func (svc *Service) PresignedGetURL(ctx context.Context, keyOrURL string, expiry time.Duration) (string, error) {
	key := ExtractKey(keyOrURL)
	if key == "" {
		return "", ErrMissingKey
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	u, err := svc.store.PresignGet(ctx, key, expiry)
	return u, errors.Wrap(err, "presigning object")
}

// ExpiryFromSeconds parses an optional expiresIn value.
func ExpiryFromSeconds(seconds int, set bool) (time.Duration, error) {
	if !set {
		return DefaultExpiry, nil
	}
	if seconds < 1 || seconds > MaxExpirySeconds {
		return 0, ErrInvalidExpiry
	}
	return time.Duration(seconds) * time.Second, nil
}

// PresignedPutURL lets the client upload fileName directly to the bucket.
// The signature covers contentType: the upload must send the same Content-Type header.
func (svc *Service) PresignedPutURL(ctx context.Context, fileName, folder, contentType string) (PresignedUpload, error) {
	folder = strings.Trim(unsafeFolders.ReplaceAllString(folder, "_"), "/")
	if folder == "" {
		folder = FolderUploads
	}
	key := Key(folder, fileName, NowFunc())
	u, err := svc.store.PresignPut(ctx, key, contentType, DefaultExpiry)
	if err != nil {
		return PresignedUpload{}, errors.Wrap(err, "presigning upload")
	}
	return PresignedUpload{
		Key:       key,
		UploadURL: u,
		URL:       svc.URL(key),
		ExpiresIn: int(DefaultExpiry / time.Second),
	}, nil
}

type PresignRequest struct {
	FileName    string `json:"fileName" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required,max=255"`
	Folder      string `json:"folder" validate:"omitempty,max=100"`
}

func (pr *PresignRequest) Validate(validate *validator.Validate) error {
	pr.FileName = core.CleanString(pr.FileName)
	pr.ContentType = core.CleanString(pr.ContentType)
	pr.Folder = core.CleanString(pr.Folder)
	return validate.Struct(pr)
}
