package storage_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/safebite/safebite-api/storage"
)

func TestPhotoKey(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	tests := []struct {
		contentType string
		ext         string
	}{
		{"image/jpeg", ".jpg"},
		{"image/jpg", ".jpg"},
		{"IMAGE/PNG", ".png"},
		{"image/webp", ".webp"},
		{"text/html", ""},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			key := storage.PhotoKey(tt.contentType, now)
			assert.Regexp(t, regexp.MustCompile(`^profile-1700000000123-\d{1,9}`+regexp.QuoteMeta(tt.ext)+`$`), key)
			assert.NotContains(t, key, "/")
		})
	}
}

func TestKeyFromReference(t *testing.T) {
	tests := map[string]string{
		"profile-1-2.jpg":                                "profile-1-2.jpg",
		"/uploads/profile-1-2.jpg":                       "profile-1-2.jpg",
		"http://localhost:3001/uploads/profile-1-2.jpg":  "profile-1-2.jpg",
		"  https://cdn.example.com/b/profile-1-2.webp  ": "profile-1-2.webp",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, storage.KeyFromReference(in))
		})
	}
}

func TestDiskStore(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "uploads")

	store, err := storage.NewDiskStore(root, "http://localhost:3001/")
	require.NoError(t, err)
	assert.DirExists(t, root)

	t.Run("save and delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "profile-1.jpg", strings.NewReader("jpeg"), 4, "image/jpeg"))

		data, err := os.ReadFile(filepath.Join(root, "profile-1.jpg"))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", string(data))

		assert.Equal(t, "/uploads/profile-1.jpg", store.Path("profile-1.jpg"))
		assert.Equal(t, "http://localhost:3001/uploads/profile-1.jpg", store.URL("profile-1.jpg"))

		require.NoError(t, store.Delete(ctx, "profile-1.jpg"))
		assert.NoFileExists(t, filepath.Join(root, "profile-1.jpg"))
	})

	t.Run("existing files are not overwritten", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "profile-2.jpg", strings.NewReader("a"), 1, "image/jpeg"))
		assert.Error(t, store.Save(ctx, "profile-2.jpg", strings.NewReader("b"), 1, "image/jpeg"))
	})

	t.Run("deleting a missing photo is fine", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "profile-missing.jpg"))
	})

	t.Run("keys cannot escape the root", func(t *testing.T) {
		for _, key := range []string{"", ".", "..", "../evil.jpg", "sub/evil.jpg"} {
			assert.Error(t, store.Save(ctx, key, strings.NewReader("x"), 1, "image/jpeg"), key)
			assert.Error(t, store.Delete(ctx, key), key)
		}
	})

	t.Run("requires a root", func(t *testing.T) {
		_, err := storage.NewDiskStore("", "")
		assert.Error(t, err)
	})
}

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *mockS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()

	t.Run("puts under the prefix", func(t *testing.T) {
		var body []byte
		client := &mockS3{}
		client.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			return aws.ToString(in.Bucket) == "photos" &&
				aws.ToString(in.Key) == "avatars/profile-1.png" &&
				aws.ToString(in.ContentType) == "image/png" &&
				aws.ToInt64(in.ContentLength) == 3
		})).Run(func(args mock.Arguments) {
			body, _ = io.ReadAll(args.Get(1).(*s3.PutObjectInput).Body)
		}).Return(nil)

		store := storage.NewS3Store(client, storage.S3Config{
			Bucket:    "photos",
			Prefix:    "/avatars/",
			PublicURL: "https://cdn.example.com/",
		})

		require.NoError(t, store.Save(ctx, "profile-1.png", strings.NewReader("png"), 3, "image/png"))
		assert.Equal(t, "png", string(body))
		assert.Equal(t, "/avatars/profile-1.png", store.Path("profile-1.png"))
		assert.Equal(t, "https://cdn.example.com/avatars/profile-1.png", store.URL("profile-1.png"))
		client.AssertExpectations(t)
	})

	t.Run("defaults the public url to endpoint and bucket", func(t *testing.T) {
		store := storage.NewS3Store(&mockS3{}, storage.S3Config{
			Bucket:   "photos",
			Endpoint: "http://localhost:9000/",
		})
		assert.Equal(t, "http://localhost:9000/photos/profile-1.png", store.URL("profile-1.png"))
	})

	t.Run("wraps client errors", func(t *testing.T) {
		client := &mockS3{}
		boom := errors.New("access denied")
		client.On("DeleteObject", ctx, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
			return aws.ToString(in.Key) == "profile-1.png"
		})).Return(boom)

		store := storage.NewS3Store(client, storage.S3Config{Bucket: "photos"})
		err := store.Delete(ctx, "profile-1.png")
		assert.ErrorIs(t, err, boom)
	})
}
