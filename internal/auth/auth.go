package auth

import (
	"os"
	"path/filepath"
	"time"
)

// TokenData represents the tokens stored in auth.json.
type TokenData struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	AccountID    string `json:"account_id"`
}

// AuthFile represents the full auth.json contents.
type AuthFile struct {
	Tokens      TokenData `json:"tokens"`
	LastRefresh string    `json:"last_refresh"`
}

// HomeDir returns the directory auth.json and the usage snapshot are
// written to.
func HomeDir() string {
	if d := os.Getenv("CHATGPT_LOCAL_HOME"); d != "" {
		return d
	}
	if d := os.Getenv("CODEX_HOME"); d != "" {
		return d
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatgpt-local")
}

// searchDirs lists the directories probed for an existing auth.json, in
// priority order. Credentials written by the Codex CLI are picked up too.
func searchDirs() []string {
	home, _ := os.UserHomeDir()
	var dirs []string
	for _, d := range []string{
		os.Getenv("CHATGPT_LOCAL_HOME"),
		os.Getenv("CODEX_HOME"),
		filepath.Join(home, ".chatgpt-local"),
		filepath.Join(home, ".codex"),
	} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Identity is the account information carried in the id_token claims.
type Identity struct {
	Email     string
	PlanType  string
	AccountID string
}

// ParseIdentity reads the account claims from an id_token. Missing claims
// are left empty.
func ParseIdentity(idToken string) Identity {
	var id Identity
	claims, err := ParseJWTClaims(idToken)
	if err != nil {
		return id
	}
	id.Email, _ = claims["email"].(string)
	if authClaims, ok := claims["https://api.openai.com/auth"].(map[string]any); ok {
		id.PlanType, _ = authClaims["chatgpt_plan_type"].(string)
		id.AccountID, _ = authClaims["chatgpt_account_id"].(string)
	}
	return id
}

// DeriveAccountID extracts the ChatGPT account ID from an id_token's claims.
func DeriveAccountID(idToken string) string {
	if idToken == "" {
		return ""
	}
	return ParseIdentity(idToken).AccountID
}

// accessExpiry estimates when an access token stops being usable: the JWT
// exp claim when present, otherwise one hour after the last refresh. A zero
// time means unknown.
func accessExpiry(accessToken, lastRefresh string) time.Time {
	if claims, err := ParseJWTClaims(accessToken); err == nil {
		if exp, ok := claims["exp"].(float64); ok {
			return time.Unix(int64(exp), 0)
		}
	}
	if lastRefresh != "" {
		if t, err := time.Parse(time.RFC3339, lastRefresh); err == nil {
			return t.Add(time.Hour)
		}
	}
	return time.Time{}
}

func nowISO8601() string {
	return time.Now().UTC().Format(time.RFC3339)
}
