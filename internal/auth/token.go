package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// refreshSkew is how long before expiry an access token is refreshed.
const refreshSkew = 5 * time.Minute

// TokenManager serves the current access token and account id, refreshing
// the access token through the configured token endpoint before it
// expires. Refreshed tokens are written back to the store.
type TokenManager struct {
	store    Store
	clientID string
	tokenURL string
	client   *http.Client

	mu     sync.Mutex
	loaded AuthFile
	src    oauth2.TokenSource
}

// NewTokenManager creates a token manager. An empty clientID disables
// refresh; the stored access token is then used as-is.
func NewTokenManager(store Store, clientID, tokenURL string) *TokenManager {
	return &TokenManager{
		store:    store,
		clientID: clientID,
		tokenURL: tokenURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Credentials returns the access token and ChatGPT account id. It returns
// ErrNoCredentials when nothing usable is stored.
func (tm *TokenManager) Credentials(ctx context.Context) (accessToken, accountID string, err error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	af, err := tm.store.Load(ctx)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	// another process (codex login, a second proxy) may have rewritten the
	// credentials since the last call
	if tm.src == nil || af.Tokens != tm.loaded.Tokens {
		tm.loaded = *af
		tm.src = tm.newSource(af)
	}

	tok, err := tm.src.Token()
	if err != nil {
		slog.Error("failed to refresh tokens", "error", err)
		tok = &oauth2.Token{AccessToken: tm.loaded.Tokens.AccessToken}
	}
	if tok.AccessToken == "" {
		return "", "", ErrNoCredentials
	}

	accountID = tm.loaded.Tokens.AccountID
	if accountID == "" {
		accountID = DeriveAccountID(tm.loaded.Tokens.IDToken)
	}
	return tok.AccessToken, accountID, nil
}

// Identity returns the account identity of the stored id_token.
func (tm *TokenManager) Identity(ctx context.Context) (Identity, error) {
	af, err := tm.store.Load(ctx)
	if err != nil {
		return Identity{}, err
	}
	id := ParseIdentity(af.Tokens.IDToken)
	if id.AccountID == "" {
		id.AccountID = af.Tokens.AccountID
	}
	return id, nil
}

func (tm *TokenManager) newSource(af *AuthFile) oauth2.TokenSource {
	tok := &oauth2.Token{
		AccessToken:  af.Tokens.AccessToken,
		RefreshToken: af.Tokens.RefreshToken,
		Expiry:       accessExpiry(af.Tokens.AccessToken, af.LastRefresh),
	}
	if tm.clientID == "" || af.Tokens.RefreshToken == "" {
		return oauth2.StaticTokenSource(tok)
	}
	return oauth2.ReuseTokenSourceWithExpiry(tok, &refresher{tm: tm, refreshToken: af.Tokens.RefreshToken}, refreshSkew)
}

// refresher exchanges a refresh token for new tokens. The ChatGPT token
// endpoint expects a JSON body, so oauth2.Config's form-encoded refresh
// cannot be used.
type refresher struct {
	tm           *TokenManager
	refreshToken string
}

type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	Scope        string `json:"scope"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

// Token is called with tm.mu held, from Credentials.
func (r *refresher) Token() (*oauth2.Token, error) {
	body, err := json.Marshal(refreshRequest{
		GrantType:    "refresh_token",
		RefreshToken: r.refreshToken,
		ClientID:     r.tm.clientID,
		Scope:        "openid profile email offline_access",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, r.tm.tokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.tm.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var data refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("unable to parse refresh response: %w", err)
	}
	if data.IDToken == "" || data.AccessToken == "" {
		return nil, ErrRefreshFailed
	}
	if data.RefreshToken != "" {
		r.refreshToken = data.RefreshToken
	}

	af := r.tm.loaded
	af.Tokens.AccessToken = data.AccessToken
	af.Tokens.IDToken = data.IDToken
	af.Tokens.RefreshToken = r.refreshToken
	if id := DeriveAccountID(data.IDToken); id != "" {
		af.Tokens.AccountID = id
	}
	af.LastRefresh = nowISO8601()
	if err := r.tm.store.Save(context.Background(), &af); err != nil {
		slog.Error("unable to persist refreshed auth tokens", "error", err)
	}
	r.tm.loaded = af

	return &oauth2.Token{
		AccessToken:  af.Tokens.AccessToken,
		RefreshToken: af.Tokens.RefreshToken,
		Expiry:       accessExpiry(af.Tokens.AccessToken, af.LastRefresh),
	}, nil
}
