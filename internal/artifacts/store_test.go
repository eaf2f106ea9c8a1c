package artifacts

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/crud-e2e/internal/config"
)

// fakeS3 starts an in-memory S3 server with bucket created and returns a
// store pointed at it, plus the raw client for reading back.
func fakeS3(t *testing.T, bucket string) (*S3Store, *s3.Client) {
	t.Helper()

	ts := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	t.Cleanup(ts.Close)

	ctx := context.Background()
	store, err := NewS3Store(ctx, S3Config{
		Endpoint:        ts.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Bucket:          bucket,
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	_, err = store.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err)
	return store, store.client
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "20260101T000000Z/TestDroneDeals/CRUD/create_a_drone/screenshot.png",
		Key("20260101T000000Z", "TestDroneDeals/CRUD/create a drone", "screenshot.png"))
	assert.Equal(t, "run/_/x/page.html", Key("run", "../x", "page.html"))
	assert.Equal(t, "run/TestA/b_c/f.png", Key("run", "TestA//b?c", "f.png"))
}

func TestKey_NeverEscapes(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.String().Draw(t, "name")
		key := Key("run", name, "screenshot.png")
		if !strings.HasPrefix(key, "run/") || !strings.HasSuffix(key, "/screenshot.png") {
			t.Fatalf("Key(%q) = %q lost its prefix or suffix", name, key)
		}
		for _, seg := range strings.Split(key, "/") {
			if seg == ".." || seg == "." || seg == "" {
				t.Fatalf("Key(%q) = %q contains segment %q", name, key, seg)
			}
		}
	})
}

func TestDirStore_Upload(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	loc, err := DirStore{Root: root}.Upload(context.Background(), "run/TestX/page.html", []byte("<html></html>"), "text/html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "run", "TestX", "page.html"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}

func TestS3Store_Upload(t *testing.T) {
	store, client := fakeS3(t, "artifacts")
	ctx := context.Background()

	loc, err := store.Upload(ctx, "run/TestX/screenshot.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "s3://artifacts/run/TestX/screenshot.png", loc)

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("artifacts"),
		Key:    aws.String("run/TestX/screenshot.png"),
	})
	require.NoError(t, err)
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, "image/png", aws.ToString(out.ContentType))
}

func TestS3Store_MissingBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{Region: "us-east-1"})
	require.Error(t, err)
}

type failingStore struct{}

func (failingStore) Upload(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("boom")
}

func TestMultiStore_AttemptsAll(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	loc, err := MultiStore{failingStore{}, DirStore{Root: root}}.Upload(context.Background(), "k/f.txt", []byte("x"), "text/plain")
	require.Error(t, err)
	assert.Equal(t, filepath.Join(root, "k", "f.txt"), loc)
	_, statErr := os.Stat(loc)
	assert.NoError(t, statErr)
}

func TestFromConfig(t *testing.T) {
	root := t.TempDir()

	store, err := FromConfig(context.Background(), &config.SuiteConfig{ArtifactsDir: root})
	require.NoError(t, err)
	assert.Equal(t, DirStore{Root: root}, store)

	store, err = FromConfig(context.Background(), &config.SuiteConfig{
		ArtifactsDir:    root,
		ArtifactsBucket: "artifacts",
		AWSEndpointS3:   "http://127.0.0.1:1",
		AWSRegion:       "auto",
	})
	require.NoError(t, err)
	multi, ok := store.(MultiStore)
	require.True(t, ok)
	assert.Len(t, multi, 2)
}

func TestS3ConfigFrom(t *testing.T) {
	compatible := s3ConfigFrom(&config.SuiteConfig{ArtifactsBucket: "artifacts", AWSEndpointS3: "http://minio:9000"})
	assert.Equal(t, S3Config{Endpoint: "http://minio:9000", Region: "auto", Bucket: "artifacts", UsePathStyle: true}, compatible)

	plain := s3ConfigFrom(&config.SuiteConfig{ArtifactsBucket: "artifacts", AWSRegion: "eu-central-1"})
	assert.Equal(t, S3Config{Region: "eu-central-1", Bucket: "artifacts"}, plain)

	store, err := FromConfig(context.Background(), &config.SuiteConfig{
		ArtifactsDir:    t.TempDir(),
		ArtifactsBucket: "artifacts",
		AWSRegion:       "eu-central-1",
	})
	require.NoError(t, err)
	assert.Len(t, store.(MultiStore), 2)
}
