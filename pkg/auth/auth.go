// Package auth provides bearer-token sources and request decorators for the
// GeoCatalog and Planetary Computer APIs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"golang.org/x/oauth2"

	"github.com/robert-malhotra/go-stac-ingest/pkg/client"
)

const (
	// GeoCatalogScope is the token scope for GeoCatalog data-plane calls.
	GeoCatalogScope = "https://geocatalog.spatio.azure.com/.default"
	// SubscriptionKeyHeader carries the Planetary Computer subscription key.
	SubscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	// RefreshWindow is how long before expiry a cached token is replaced.
	RefreshWindow = 5 * time.Minute
)

// Mode selects how bearer tokens are obtained.
type Mode string

const (
	ModeAzureCLI Mode = "cli"
	ModeDefault  Mode = "default"
	ModeToken    Mode = "token"
	ModeNone     Mode = "none"
)

// ErrTokenRequired is returned when ModeToken is used without a token.
var ErrTokenRequired = errors.New("a bearer token is required")

// Config describes where tokens come from.
type Config struct {
	Mode  Mode
	Token string
	Scope string
}

// TokenSource builds the token source for cfg. Azure credentials are wrapped
// so a token is reused until RefreshWindow before it expires. ModeNone
// returns a nil source.
func TokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	scope := cfg.Scope
	if scope == "" {
		scope = GeoCatalogScope
	}

	var cred azcore.TokenCredential
	switch cfg.Mode {
	case ModeNone:
		return nil, nil
	case ModeToken:
		token := strings.TrimSpace(cfg.Token)
		if token == "" {
			return nil, ErrTokenRequired
		}
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil
	case ModeAzureCLI, "":
		c, err := azidentity.NewAzureCLICredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure cli credential: %w", err)
		}
		cred = c
	case ModeDefault:
		c, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("default azure credential: %w", err)
		}
		cred = c
	default:
		return nil, fmt.Errorf("unsupported authentication mode: %s", cfg.Mode)
	}
	return ReuseWithEarlyExpiry(AzureTokenSource(ctx, cred, scope), RefreshWindow), nil
}

// AzureTokenSource adapts an Azure credential to oauth2.TokenSource. Every
// call asks the credential for a new token; wrap it with ReuseWithEarlyExpiry.
func AzureTokenSource(ctx context.Context, cred azcore.TokenCredential, scopes ...string) oauth2.TokenSource {
	return &azureTokenSource{ctx: ctx, cred: cred, scopes: scopes}
}

type azureTokenSource struct {
	ctx    context.Context
	cred   azcore.TokenCredential
	scopes []string
}

func (s *azureTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.cred.GetToken(s.ctx, policy.TokenRequestOptions{Scopes: s.scopes})
	if err != nil {
		return nil, fmt.Errorf("acquire token for %s: %w", strings.Join(s.scopes, ","), err)
	}
	return &oauth2.Token{AccessToken: tok.Token, TokenType: "Bearer", Expiry: tok.ExpiresOn}, nil
}

// ReuseWithEarlyExpiry caches tokens from src and treats them as expired
// window before their real expiry.
func ReuseWithEarlyExpiry(src oauth2.TokenSource, window time.Duration) oauth2.TokenSource {
	return oauth2.ReuseTokenSourceWithExpiry(nil, src, window)
}

// Middleware returns a client.Middleware that sets the Authorization header
// from src. A nil src yields a nil middleware.
func Middleware(src oauth2.TokenSource) client.Middleware {
	if src == nil {
		return nil
	}
	return func(_ context.Context, r *http.Request) error {
		tok, err := src.Token()
		if err != nil {
			return err
		}
		tok.SetAuthHeader(r)
		return nil
	}
}

// HeaderMiddleware returns a client.Middleware that sets a fixed header. An
// empty value yields a nil middleware.
func HeaderMiddleware(name, value string) client.Middleware {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	canonical := http.CanonicalHeaderKey(name)
	return func(_ context.Context, r *http.Request) error {
		r.Header.Set(canonical, value)
		return nil
	}
}

// QueryMiddleware returns a client.Middleware that sets a query parameter on
// every request.
func QueryMiddleware(key, value string) client.Middleware {
	return func(_ context.Context, r *http.Request) error {
		q := r.URL.Query()
		q.Set(key, value)
		r.URL.RawQuery = q.Encode()
		return nil
	}
}
