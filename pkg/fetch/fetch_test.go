package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestFetchHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/thumb.png":
			w.Header().Set("Content-Type", "image/png; charset=binary")
			w.Write(pngHeader)
		case "/untyped":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(pngHeader)
		case "/big":
			w.Write(bytes.Repeat([]byte("a"), 32))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	f := &Fetcher{HTTPClient: server.Client(), MaxBytes: 16}
	ctx := context.Background()

	data, ct, err := f.Fetch(ctx, server.URL+"/thumb.png")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", ct)

	_, ct, err = f.Fetch(ctx, server.URL+"/untyped")
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	_, _, err = f.Fetch(ctx, server.URL+"/big")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, _, err = f.Fetch(ctx, server.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, _, err = f.Fetch(ctx, "ftp://example.com/thumb.png")
	assert.Error(t, err)
}

type fakeS3 struct {
	bucket, key string
	body        []byte
	err         error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket, f.key = aws.ToString(in.Bucket), aws.ToString(in.Key)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(f.body)),
		ContentType: aws.String("image/png"),
	}, nil
}

func TestFetchS3(t *testing.T) {
	s3api := &fakeS3{body: pngHeader}
	f := &Fetcher{S3: s3api}

	data, ct, err := f.Fetch(context.Background(), "s3://thumbnails/modis/13q1.png")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, "thumbnails", s3api.bucket)
	assert.Equal(t, "modis/13q1.png", s3api.key)

	s3api.err = errors.New("access denied")
	_, _, err = f.Fetch(context.Background(), "s3://thumbnails/x.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
