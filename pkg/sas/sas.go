// Package sas signs Azure Blob Storage asset hrefs with short-lived SAS
// tokens issued by the Planetary Computer SAS API.
package sas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/robert-malhotra/go-stac-ingest/pkg/auth"
	"github.com/robert-malhotra/go-stac-ingest/pkg/client"
	"github.com/robert-malhotra/go-stac-ingest/pkg/stac"
)

// DefaultEndpoint is the public Planetary Computer SAS API.
const DefaultEndpoint = "https://planetarycomputer.microsoft.com/api/sas/v1/"

const blobHostSuffix = ".blob.core.windows.net"

// publicAccounts serve anonymous reads and are never signed.
var publicAccounts = map[string]bool{
	"ai4edatasetspublicassets": true,
}

// Token is a SAS token for one storage container.
type Token struct {
	Expiry time.Time `json:"msft:expiry"`
	Token  string    `json:"token"`
}

// Option configures a Signer.
type Option func(*Signer)

// WithSubscriptionKey sends key with every token request.
func WithSubscriptionKey(key string) Option {
	return func(s *Signer) { s.subscriptionKey = key }
}

// WithClientOptions passes options to the underlying API client.
func WithClientOptions(opts ...client.ClientOption) Option {
	return func(s *Signer) { s.clientOpts = append(s.clientOpts, opts...) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// Signer appends SAS tokens to blob storage hrefs, caching one token per
// account/container until auth.RefreshWindow before it expires.
type Signer struct {
	api             *client.Client
	subscriptionKey string
	clientOpts      []client.ClientOption
	now             func() time.Time

	mu     sync.Mutex
	tokens map[string]Token
}

// NewSigner creates a Signer for the SAS API at endpoint.
func NewSigner(endpoint string, opts ...Option) (*Signer, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	s := &Signer{now: time.Now, tokens: map[string]Token{}}
	for _, o := range opts {
		o(s)
	}

	clientOpts := append([]client.ClientOption{
		client.WithMiddleware(auth.HeaderMiddleware(auth.SubscriptionKeyHeader, s.subscriptionKey)),
	}, s.clientOpts...)
	api, err := client.NewClient(endpoint, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("sas endpoint: %w", err)
	}
	s.api = api
	return s, nil
}

// Token returns a valid token for the container, fetching one when the
// cached token is missing or about to expire.
func (s *Signer) Token(ctx context.Context, account, container string) (Token, error) {
	key := account + "/" + container

	s.mu.Lock()
	defer s.mu.Unlock()

	if tok, ok := s.tokens[key]; ok && s.now().Add(auth.RefreshWindow).Before(tok.Expiry) {
		return tok, nil
	}

	var tok Token
	ref := "token/" + url.PathEscape(account) + "/" + url.PathEscape(container)
	if err := s.api.DoJSON(ctx, http.MethodGet, ref, nil, nil, &tok); err != nil {
		return Token{}, fmt.Errorf("sas token for %s: %w", key, err)
	}
	if tok.Token == "" {
		return Token{}, fmt.Errorf("sas token for %s: empty token in response", key)
	}
	s.tokens[key] = tok
	return tok, nil
}

// SignHref returns href with a SAS token appended. Hrefs outside Azure Blob
// Storage, on public accounts, or already carrying a signature are returned
// unchanged.
func (s *Signer) SignHref(ctx context.Context, href string) (string, error) {
	account, container, ok := blobLocation(href)
	if !ok {
		return href, nil
	}
	tok, err := s.Token(ctx, account, container)
	if err != nil {
		return "", err
	}
	sep := "?"
	if strings.Contains(href, "?") {
		sep = "&"
	}
	return href + sep + strings.TrimPrefix(tok.Token, "?"), nil
}

// SignItem signs every asset href of item in place.
func (s *Signer) SignItem(ctx context.Context, item *stac.Item) error {
	for _, key := range item.AssetKeys() {
		asset := item.Assets[key]
		if asset == nil {
			continue
		}
		signed, err := s.SignHref(ctx, asset.Href)
		if err != nil {
			return fmt.Errorf("sign asset %q of item %q: %w", key, item.ID, err)
		}
		asset.Href = signed
	}
	return nil
}

func blobLocation(href string) (account, container string, ok bool) {
	u, err := url.Parse(href)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return "", "", false
	}
	host := strings.ToLower(u.Hostname())
	if !strings.HasSuffix(host, blobHostSuffix) {
		return "", "", false
	}
	account = strings.TrimSuffix(host, blobHostSuffix)
	if publicAccounts[account] || u.Query().Has("sig") {
		return "", "", false
	}
	container, _, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if container == "" {
		return "", "", false
	}
	return account, container, true
}
