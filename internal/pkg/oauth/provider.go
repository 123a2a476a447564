package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/oauth2"

	"github.com/qs3c/calmness_server/internal/pkg/apperr"
)

const (
	ProviderGoogle = "google"
	ProviderGithub = "github"
	ProviderApple  = "apple"
)

var (
	ErrUnsupportedProvider = apperr.BadRequest("unsupported oauth provider")
	ErrUpstream            = apperr.BadRequest("oauth provider request failed")
	ErrInvalidProfile      = apperr.BadRequest("invalid oauth profile")
)

// Token 换取到的第三方凭证
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	IDToken      string
	raw          *oauth2.Token
}

func newToken(t *oauth2.Token) *Token {
	tok := &Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
		raw:          t,
	}
	if idToken, ok := t.Extra("id_token").(string); ok {
		tok.IDToken = idToken
	}
	return tok
}

// ExpiresAt 无过期时间时返回 nil
func (t *Token) ExpiresAt() *time.Time {
	if t.Expiry.IsZero() {
		return nil
	}
	e := t.Expiry
	return &e
}

func (t *Token) oauth2Token() *oauth2.Token {
	if t.raw != nil {
		return t.raw
	}
	return &oauth2.Token{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken, Expiry: t.Expiry}
}

// Profile 第三方用户信息
type Profile struct {
	ProviderUserID string
	Email          string
	Name           string
	Login          string
}

type Provider interface {
	Name() string
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Token, error)
	FetchProfile(ctx context.Context, token *Token) (*Profile, error)
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, apperr.Wrap(ErrUnsupportedProvider, fmt.Errorf("provider %q", name))
	}
	return p, nil
}

// Names 已注册的 provider，按字母序
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// exchangeError 将 oauth2 的错误统一归类为上游失败
func exchangeError(provider string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return apperr.Wrap(ErrUpstream, fmt.Errorf("%s token endpoint returned %d", provider, re.Response.StatusCode))
	}
	return apperr.Wrap(ErrUpstream, fmt.Errorf("%s exchange: %w", provider, err))
}

// getJSON 请求第三方接口，非 200 视为上游失败
func getJSON(ctx context.Context, client *http.Client, provider, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return apperr.Wrap(ErrUpstream, fmt.Errorf("%s request: %w", provider, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.Wrap(ErrUpstream, fmt.Errorf("%s api error (%d): %s", provider, resp.StatusCode, string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(ErrInvalidProfile, fmt.Errorf("%s decode: %w", provider, err))
	}
	return nil
}
