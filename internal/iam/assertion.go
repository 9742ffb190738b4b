package iam

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/hlab-io/openconsole/internal/config"
)

const (
	jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// assertionLifetime is the validity window of a signed assertion, not of
	// the access token the provider mints from it.
	assertionLifetime = time.Hour
)

// MintedToken is a provider access token obtained via the JWT-bearer grant.
type MintedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// AssertionMinter signs JWT-bearer assertions with the service account's
// private key and exchanges them for access tokens at the provider's token
// endpoint. The provider verifies the signature against the public key
// uploaded under the same key ID.
type AssertionMinter struct {
	issuer string
	userID string
	keyID  string
	key    *rsa.PrivateKey
	scopes []string

	httpClient *http.Client
	now        func() time.Time
}

// NewAssertionMinter builds a minter from static service-account material.
// Returns ErrServiceAccountNotConfigured when no material is present.
func NewAssertionMinter(issuer string, sa config.ServiceAccountConfig, scopes []string) (*AssertionMinter, error) {
	if !sa.Configured() {
		return nil, ErrServiceAccountNotConfigured
	}

	key, err := parsePrivateKey([]byte(sa.Key))
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	return &AssertionMinter{
		issuer:     strings.TrimSuffix(issuer, "/"),
		userID:     sa.UserID,
		keyID:      sa.KeyID,
		key:        key,
		scopes:     scopes,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}, nil
}

// SignAssertion produces a signed RS256 assertion. The service-account user
// ID is both issuer and subject; the audience is the provider issuer.
func (m *AssertionMinter) SignAssertion() (string, error) {
	now := m.now()

	claims := josejwt.Claims{
		Issuer:   m.userID,
		Subject:  m.userID,
		Audience: josejwt.Audience{m.issuer},
		IssuedAt: josejwt.NewNumericDate(now),
		Expiry:   josejwt.NewNumericDate(now.Add(assertionLifetime)),
	}

	key := &jose.JSONWebKey{Key: m.key, Algorithm: string(jose.RS256), KeyID: m.keyID}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, nil)
	if err != nil {
		return "", fmt.Errorf("create signer: %w", err)
	}

	token, err := josejwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return token, nil
}

// Mint exchanges a fresh assertion for an access token.
func (m *AssertionMinter) Mint(ctx context.Context) (MintedToken, error) {
	assertion, err := m.SignAssertion()
	if err != nil {
		return MintedToken{}, err
	}

	form := url.Values{
		"grant_type": {jwtBearerGrantType},
		"assertion":  {assertion},
		"scope":      {strings.Join(m.scopes, " ")},
	}

	endpoint := m.issuer + "/oauth/v2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return MintedToken{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return MintedToken{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return MintedToken{}, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return MintedToken{}, &ProviderError{Op: "mint service token", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return MintedToken{}, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return MintedToken{}, fmt.Errorf("token response missing access_token")
	}

	return MintedToken{
		AccessToken: payload.AccessToken,
		ExpiresAt:   m.now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}

// parsePrivateKey accepts PKCS#1 and PKCS#8 PEM-encoded RSA keys.
func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T, want RSA", parsed)
	}
	return key, nil
}
