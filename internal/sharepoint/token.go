package sharepoint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const graphScope = "https://graph.microsoft.com/.default"

// TokenCache holds the app-only Graph token and refreshes it on expiry.
// It is owned by a Client; nothing else shares its state.
type TokenCache struct {
	mu    sync.Mutex
	token *oauth2.Token
	fetch func(ctx context.Context) (*oauth2.Token, error)
}

func NewTokenCache(cfg *clientcredentials.Config) *TokenCache {
	return &TokenCache{fetch: cfg.Token}
}

// GetValidToken returns the cached access token, fetching a new one when it
// is missing or about to expire.
func (c *TokenCache) GetValidToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() {
		return c.token.AccessToken, nil
	}

	tok, err := c.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch graph access token: %w", err)
	}
	c.token = tok
	slog.Info("graph access token refreshed", "expires_at", tok.Expiry)
	return tok.AccessToken, nil
}

func credentialsConfig(tenantID, clientID, clientSecret, tokenURL string) *clientcredentials.Config {
	if tokenURL == "" {
		tokenURL = "https://login.microsoftonline.com/" + tenantID + "/oauth2/v2.0/token"
	}
	return &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
}
