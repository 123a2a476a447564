package oauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/qs3c/calmness_server/internal/pkg/apperr"
)

const (
	appleIssuer   = "https://appleid.apple.com"
	appleKeysURL  = "https://appleid.apple.com/auth/keys"
	appleKeysTTL  = time.Hour
	appleAuthURL  = "https://appleid.apple.com/auth/authorize"
	appleTokenURL = "https://appleid.apple.com/auth/token"

	// 未知 kid 触发重新拉取的最小间隔
	appleKeysMinRefresh = time.Minute
)

var ErrInvalidIDToken = apperr.BadRequest("invalid apple id token")

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type appleClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AppleOAuth 身份信息来自签名的 id_token，而不是 profile 接口
type AppleOAuth struct {
	config     *oauth2.Config
	keysURL    string
	httpClient *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewAppleOAuth(clientID, clientSecret, redirectURI string) *AppleOAuth {
	return &AppleOAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"name", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   appleAuthURL,
				TokenURL:  appleTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		keysURL:    appleKeysURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *AppleOAuth) WithEndpoints(endpoint oauth2.Endpoint, keysURL string) *AppleOAuth {
	a.config.Endpoint = endpoint
	a.keysURL = keysURL
	return a
}

func (a *AppleOAuth) Name() string {
	return ProviderApple
}

// AuthURL 请求 name/email scope 时 Apple 要求 form_post
func (a *AppleOAuth) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "form_post"))
}

func (a *AppleOAuth) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, exchangeError(ProviderApple, err)
	}
	return newToken(tok), nil
}

// FetchProfile 校验 id_token 的签名、audience、issuer 后取出身份
func (a *AppleOAuth) FetchProfile(ctx context.Context, token *Token) (*Profile, error) {
	if token.IDToken == "" {
		return nil, fmt.Errorf("%w: missing id_token", ErrInvalidIDToken)
	}

	claims := &appleClaims{}
	_, err := jwt.ParseWithClaims(token.IDToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return a.publicKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(a.config.ClientID),
		jwt.WithIssuer(appleIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, apperr.Wrap(ErrInvalidIDToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidIDToken)
	}

	return &Profile{
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
	}, nil
}

func (a *AppleOAuth) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	age := time.Since(a.fetchedAt)
	if key, ok := a.keys[kid]; ok && age < appleKeysTTL {
		return key, nil
	}
	if a.keys != nil && age < appleKeysMinRefresh {
		return nil, fmt.Errorf("signing key %q not found", kid)
	}

	// 未命中时重新拉取，Apple 会轮换签名 key
	keys, err := a.fetchKeys(ctx)
	if err != nil {
		return nil, err
	}
	a.keys = keys
	a.fetchedAt = time.Now()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("signing key %q not found", kid)
	}
	return key, nil
}

func (a *AppleOAuth) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := getJSON(ctx, a.httpClient, ProviderApple, a.keysURL, &set); err != nil {
		return nil, err
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaPublicKey(k)
		if err != nil {
			return nil, fmt.Errorf("parse jwk %s: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

func rsaPublicKey(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("invalid exponent")
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
