package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	oauth "github.com/giantswarm/mcp-oauth"
	"github.com/giantswarm/mcp-oauth/providers/dex"
	oauthserver "github.com/giantswarm/mcp-oauth/server"
	"github.com/giantswarm/mcp-oauth/storage/memory"
)

// OAuthProviderDex is the Dex OIDC provider.
const OAuthProviderDex = "dex"

// OAuthConfig protects the MCP endpoint with OAuth 2.1.
type OAuthConfig struct {
	// BaseURL is the server's public base URL (e.g. https://qa.example.com).
	BaseURL string
	// Provider is the OAuth provider name. Only "dex" is supported.
	Provider        string
	DexIssuerURL    string
	DexClientID     string
	DexClientSecret string
}

// Validate checks that every required field is present.
func (c OAuthConfig) Validate() error {
	if c.Provider != "" && c.Provider != OAuthProviderDex {
		return fmt.Errorf("unsupported OAuth provider %q (supported: %s)", c.Provider, OAuthProviderDex)
	}
	if err := validateHTTPSRequirement(c.BaseURL); err != nil {
		return fmt.Errorf("OAuth base URL validation failed: %w", err)
	}
	switch {
	case c.DexIssuerURL == "":
		return fmt.Errorf("dex issuer URL is required")
	case c.DexClientID == "":
		return fmt.Errorf("dex client ID is required")
	case c.DexClientSecret == "":
		return fmt.Errorf("dex client secret is required")
	}
	return nil
}

type oauthGuard struct {
	server  *oauth.Server
	handler *oauth.Handler
}

func newOAuthGuard(cfg OAuthConfig, logger *slog.Logger) (*oauthGuard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dexProvider, err := dex.NewProvider(&dex.Config{
		IssuerURL:    cfg.DexIssuerURL,
		ClientID:     cfg.DexClientID,
		ClientSecret: cfg.DexClientSecret,
		RedirectURL:  cfg.BaseURL + "/oauth/callback",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Dex provider: %w", err)
	}

	// In-memory storage; tokens do not survive a restart.
	store := memory.New()

	srv, err := oauth.NewServer(
		dexProvider,
		store,
		store,
		store,
		&oauthserver.Config{
			Issuer:                    cfg.BaseURL,
			AllowRefreshTokenRotation: true,
			MaxClientsPerIP:           10,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth server: %w", err)
	}

	return &oauthGuard{server: srv, handler: oauth.NewHandler(srv, logger)}, nil
}

func (g *oauthGuard) register(mux *http.ServeMux, protectedEndpoint string) {
	g.handler.RegisterAuthorizationServerMetadataRoutes(mux)
	g.handler.RegisterProtectedResourceMetadataRoutes(mux, protectedEndpoint)
	mux.HandleFunc("/oauth/authorize", g.handler.ServeAuthorization)
	mux.HandleFunc("/oauth/token", g.handler.ServeToken)
	mux.HandleFunc("/oauth/callback", g.handler.ServeCallback)
	mux.HandleFunc("/oauth/register", g.handler.ServeClientRegistration)
	mux.HandleFunc("/oauth/revoke", g.handler.ServeTokenRevocation)
	mux.HandleFunc("/oauth/introspect", g.handler.ServeTokenIntrospection)
}

func (g *oauthGuard) protect(h http.Handler) http.Handler {
	return g.handler.ValidateToken(h)
}

// validateHTTPSRequirement ensures OAuth 2.1 HTTPS compliance.
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1).
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		switch u.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return nil
		}
		return fmt.Errorf("OAuth 2.1 requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
	default:
		return fmt.Errorf("invalid URL scheme: %s (must be http for localhost or https)", u.Scheme)
	}
}
