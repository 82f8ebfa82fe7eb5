package s3blob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStubStore serves just enough of the S3 HTTP surface for HeadBucket.
func newStubStore(t *testing.T, bucketStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(bucketStatus)
			return
		}
		w.WriteHeader(http.StatusNotImplemented)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newStubClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	client, err := New(context.Background(), ClientConfig{
		Endpoint:       endpoint,
		Region:         "us-east-1",
		Bucket:         "optfolio-test",
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	return client
}

func TestNew_RequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")

	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region")
}

func TestClient_Health_BucketReachable(t *testing.T) {
	srv := newStubStore(t, http.StatusOK)
	client := newStubClient(t, srv.URL)

	assert.NoError(t, client.Health(context.Background()))
}

func TestClient_Health_BucketMissing(t *testing.T) {
	srv := newStubStore(t, http.StatusNotFound)
	client := newStubClient(t, srv.URL)

	err := client.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "optfolio-test")
}

func TestWithScheme(t *testing.T) {
	assert.Equal(t, "https://store.example.com", withScheme("https://store.example.com", false))
	assert.Equal(t, "http://minio:9000", withScheme("http://minio:9000", true))
	assert.Equal(t, "https://store.example.com", withScheme("store.example.com", true))
	assert.Equal(t, "http://store.example.com", withScheme("store.example.com", false))
}
