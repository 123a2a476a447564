package oauth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIBase = "https://api.github.com"

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type GithubOAuth struct {
	config  *oauth2.Config
	apiBase string
}

func NewGithubOAuth(clientID, clientSecret, redirectURI string) *GithubOAuth {
	return &GithubOAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: githubAPIBase,
	}
}

// WithEndpoints 替换授权端点和 API 地址（测试或 GitHub Enterprise）
func (g *GithubOAuth) WithEndpoints(endpoint oauth2.Endpoint, apiBase string) *GithubOAuth {
	g.config.Endpoint = endpoint
	g.apiBase = strings.TrimRight(apiBase, "/")
	return g
}

func (g *GithubOAuth) Name() string {
	return ProviderGithub
}

// AuthURL 获取 GitHub 授权 URL
func (g *GithubOAuth) AuthURL(state string) string {
	return g.config.AuthCodeURL(state)
}

// Exchange 用授权码换取 access token
func (g *GithubOAuth) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, exchangeError(ProviderGithub, err)
	}
	return newToken(tok), nil
}

// FetchProfile 获取 GitHub 用户信息，公开邮箱为空时只接受已验证的主邮箱
func (g *GithubOAuth) FetchProfile(ctx context.Context, token *Token) (*Profile, error) {
	client := g.config.Client(ctx, token.oauth2Token())

	var user githubUser
	if err := getJSON(ctx, client, ProviderGithub, g.apiBase+"/user", &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: missing github user id", ErrInvalidProfile)
	}

	if user.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, ProviderGithub, g.apiBase+"/user/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				user.Email = e.Email
				break
			}
		}
	}

	return &Profile{
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          user.Email,
		Name:           user.Name,
		Login:          user.Login,
	}, nil
}
