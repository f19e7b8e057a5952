// internal/sheets/auth.go
package sheets

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const spreadsheetScope = "https://www.googleapis.com/auth/spreadsheets"

// TokenSource supplies a bearer token for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// serviceAccountKey is the subset of a Google service-account JSON key
// file this client uses.
type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// ServiceAccount mints spreadsheet-scoped access tokens from a
// service-account key: a signed JWT assertion exchanged at the token
// endpoint, cached until shortly before expiry.
type ServiceAccount struct {
	email      string
	key        *rsa.PrivateKey
	tokenURI   string
	httpClient *http.Client
	now        func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewServiceAccount loads a service-account key file.
func NewServiceAccount(path string, httpClient *http.Client) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sheets: read service account key: %w", err)
	}
	var key serviceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("sheets: parse service account key: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("sheets: service account key missing client_email or private_key")
	}
	rsaKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(key.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("sheets: parse private key: %w", err)
	}
	tokenURI := key.TokenURI
	if tokenURI == "" {
		tokenURI = "https://oauth2.googleapis.com/token"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ServiceAccount{
		email:      key.ClientEmail,
		key:        rsaKey,
		tokenURI:   tokenURI,
		httpClient: httpClient,
		now:        time.Now,
	}, nil
}

// Token returns a cached access token, minting a fresh one when less
// than a minute of validity remains.
func (a *ServiceAccount) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" && a.now().Before(a.expires.Add(-time.Minute)) {
		return a.token, nil
	}

	now := a.now()
	claims := jwt.MapClaims{
		"iss":   a.email,
		"scope": spreadsheetScope,
		"aud":   a.tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sheets: sign token assertion: %w", err)
	}

	form := url.Values{
		"grant_type": []string{"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  []string{assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("sheets: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sheets: token exchange: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("sheets: parse token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || body.AccessToken == "" {
		return "", fmt.Errorf("sheets: token exchange failed with HTTP %d", resp.StatusCode)
	}

	a.token = body.AccessToken
	a.expires = now.Add(time.Duration(body.ExpiresIn) * time.Second)
	return a.token, nil
}

// StaticToken is a TokenSource with a fixed token, for tests and for
// deployments that manage credentials externally.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }
