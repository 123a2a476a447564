package oauth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

type GoogleOAuth struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleOAuth(clientID, clientSecret, redirectURI string) *GoogleOAuth {
	return &GoogleOAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (g *GoogleOAuth) WithEndpoints(endpoint oauth2.Endpoint, userInfoURL string) *GoogleOAuth {
	g.config.Endpoint = endpoint
	g.userInfoURL = userInfoURL
	return g
}

func (g *GoogleOAuth) Name() string {
	return ProviderGoogle
}

// AuthURL 请求 offline access 以拿到 refresh token
func (g *GoogleOAuth) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, exchangeError(ProviderGoogle, err)
	}
	return newToken(tok), nil
}

func (g *GoogleOAuth) FetchProfile(ctx context.Context, token *Token) (*Profile, error) {
	client := g.config.Client(ctx, token.oauth2Token())

	var info struct {
		Sub   string `json:"sub"`
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := getJSON(ctx, client, ProviderGoogle, g.userInfoURL, &info); err != nil {
		return nil, err
	}

	id := info.Sub
	if id == "" {
		id = info.ID
	}
	if id == "" {
		return nil, fmt.Errorf("%w: missing google user id", ErrInvalidProfile)
	}

	return &Profile{
		ProviderUserID: id,
		Email:          info.Email,
		Name:           info.Name,
	}, nil
}
