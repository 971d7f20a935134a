// Package fetch retrieves small remote files (collection thumbnails) over
// HTTP(S) or from S3.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultMaxBytes caps the size of a fetched file.
const DefaultMaxBytes = 10 << 20

// ErrTooLarge is returned when a file exceeds the fetcher's size cap.
var ErrTooLarge = errors.New("file exceeds size limit")

// S3API is the subset of the S3 client used by Fetcher.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher downloads files into memory.
type Fetcher struct {
	HTTPClient *http.Client
	// S3 is created from the default AWS configuration on first use when nil.
	S3       S3API
	MaxBytes int64
}

// New returns a Fetcher with a 60 second HTTP timeout.
func New() *Fetcher {
	return &Fetcher{HTTPClient: &http.Client{Timeout: 60 * time.Second}, MaxBytes: DefaultMaxBytes}
}

// Fetch downloads href and returns its content and media type.
func (f *Fetcher) Fetch(ctx context.Context, href string) ([]byte, string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse URL: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, u.String())
	case "s3":
		return f.fetchS3(ctx, u)
	default:
		return nil, "", fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, href string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	hc := f.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", href, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to fetch %s: unexpected status code %d", href, resp.StatusCode)
	}

	data, err := f.readAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", href, err)
	}
	return data, mediaType(resp.Header.Get("Content-Type"), data), nil
}

func (f *Fetcher) fetchS3(ctx context.Context, u *url.URL) ([]byte, string, error) {
	if f.S3 == nil {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load AWS config: %w", err)
		}
		f.S3 = s3.NewFromConfig(cfg)
	}

	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	result, err := f.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := f.readAll(result.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	var ct string
	if result.ContentType != nil {
		ct = *result.ContentType
	}
	return data, mediaType(ct, data), nil
}

func (f *Fetcher) readAll(r io.Reader) ([]byte, error) {
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// mediaType prefers the declared type unless it is missing or generic.
func mediaType(declared string, data []byte) string {
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	if declared != "" && declared != "application/octet-stream" && declared != "binary/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}
