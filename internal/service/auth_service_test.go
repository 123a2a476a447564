package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/calmness_server/internal/model"
	"github.com/qs3c/calmness_server/internal/model/dto"
	"github.com/qs3c/calmness_server/internal/pkg/apperr"
	"github.com/qs3c/calmness_server/internal/pkg/jwt"
	"github.com/qs3c/calmness_server/internal/pkg/oauth"
	"github.com/qs3c/calmness_server/internal/testutil"
)

func TestAuthService_Register_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, &dto.RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice1",
		Password: "Abcdef12",
	})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.False(t, user.IsVerified)
	assert.NotEqual(t, "Abcdef12", *user.PasswordHash)

	// 验证邮件携带 email_verification token
	token := env.notifier.verifications[user.ID]
	require.NotEmpty(t, token)
	claims, err := env.tokens.Verify(token, jwt.TypeEmailVerification)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestAuthService_Register_Conflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	testutil.TestUser(t, env.db, testutil.WithEmail("taken@example.com"), testutil.WithUsername("takenname"))

	_, err := env.auth.Register(ctx, &dto.RegisterRequest{
		Email: "taken@example.com", Username: "freshname", Password: "Abcdef12",
	})
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = env.auth.Register(ctx, &dto.RegisterRequest{
		Email: "fresh@example.com", Username: "takenname", Password: "Abcdef12",
	})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestAuthService_Register_Policy(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"short password", "validname", "Ab1", ErrPasswordTooShort},
		{"short multibyte password", "validname", "ÄÄÄAa1", ErrPasswordTooShort},
		{"password over 72 bytes", "validname", strings.Repeat("a", 78) + "Ab", ErrPasswordTooLong},
		{"no upper", "validname", "abcdef12", ErrPasswordNoUpper},
		{"no lower", "validname", "ABCDEF12", ErrPasswordNoLower},
		{"no digit", "validname", "Abcdefgh", ErrPasswordNoDigit},
		{"short username", "ab", "Abcdef12", ErrUsernameTooShort},
		{"symbol username", "bad_name", "Abcdef12", ErrUsernameNotAlnum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Register(context.Background(), &dto.RegisterRequest{
				Email: "policy@example.com", Username: tt.username, Password: tt.password,
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidatePassword_Boundaries(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     error
	}{
		{"eight characters", "Abcdef12", nil},
		{"eight multibyte characters", "ÄbcdefG1", nil},
		{"exactly 72 bytes", strings.Repeat("a", 70) + "A1", nil},
		{"73 bytes", strings.Repeat("a", 71) + "A1", ErrPasswordTooLong},
		{"seven characters nine bytes", "ÄÖbcd1A", ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
		})
	}
}

func TestAuthService_ChangePassword_TooLong(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.TestUser(t, env.db)

	err := env.auth.ChangePassword(context.Background(), user.ID, testutil.DefaultPassword, strings.Repeat("a", 78)+"Ab")
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestAuthService_VerifyThenLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, &dto.RegisterRequest{
		Email: "alice@example.com", Username: "alice1", Password: "Abcdef12",
	})
	require.NoError(t, err)

	_, err = env.auth.Login(ctx, &dto.LoginRequest{Email: "alice@example.com", Password: "Abcdef12"}, "", "")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	verified, err := env.auth.VerifyEmail(ctx, env.notifier.verifications[user.ID])
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	assert.Contains(t, env.notifier.welcomes, user.ID)

	resp, err := env.auth.Login(ctx, &dto.LoginRequest{Email: "alice@example.com", Password: "Abcdef12"}, "test-agent", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1800, resp.ExpiresIn)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.NotEmpty(t, resp.SessionToken)
	assert.NotNil(t, resp.User.LastLogin)

	claims, err := env.tokens.Verify(resp.AccessToken, jwt.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestAuthService_VerifyEmail_RejectsOtherTokenTypes(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.TestUser(t, env.db, testutil.WithUnverified())

	access, err := env.tokens.IssueAccess(user.ID)
	require.NoError(t, err)

	_, err = env.auth.VerifyEmail(context.Background(), access)
	assert.ErrorIs(t, err, ErrInvalidVerifyToken)
}

func TestAuthService_Login_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := testutil.TestUser(t, env.db, testutil.WithEmail("known@example.com"))
	testutil.TestUser(t, env.db, testutil.WithEmail("disabled@example.com"), testutil.WithInactive())
	testutil.TestUser(t, env.db, testutil.WithEmail("oauth@example.com"), testutil.WithoutPassword())

	tests := []struct {
		name  string
		email string
		pass  string
		want  error
	}{
		{"wrong password", "known@example.com", "Wrong1234", ErrInvalidCredentials},
		{"unknown email", "nobody@example.com", testutil.DefaultPassword, ErrInvalidCredentials},
		{"no password set", "oauth@example.com", testutil.DefaultPassword, ErrInvalidCredentials},
		{"disabled", "disabled@example.com", testutil.DefaultPassword, ErrAccountDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Login(ctx, &dto.LoginRequest{Email: tt.email, Password: tt.pass}, "", "")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// 失败的登录不产生会话
	var count int64
	require.NoError(t, env.db.Model(&model.UserSession{}).Count(&count).Error)
	assert.Zero(t, count)

	reloaded, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.LastLogin)
}

func TestAuthService_Login_TwoFactor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, secret := env.totpUser(t)

	_, err := env.auth.Login(ctx, &dto.LoginRequest{Email: user.Email, Password: testutil.DefaultPassword}, "", "")
	assert.ErrorIs(t, err, ErrTwoFactorRequired)

	_, err = env.auth.Login(ctx, &dto.LoginRequest{
		Email: user.Email, Password: testutil.DefaultPassword, TOTPCode: "000000",
	}, "", "")
	assert.ErrorIs(t, err, ErrInvalidLoginCode)

	code, err := env.mfa.Code(secret)
	require.NoError(t, err)

	resp, err := env.auth.Login(ctx, &dto.LoginRequest{
		Email: user.Email, Password: testutil.DefaultPassword, TOTPCode: code,
	}, "", "")
	require.NoError(t, err)
	assert.True(t, resp.User.TwoFactorEnabled)
}

func TestAuthService_Login_BackupCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := testutil.TestUser(t, env.db)
	setup, err := env.twoFactor.Setup(ctx, user.ID)
	require.NoError(t, err)

	code, err := env.mfa.Code(setup.Secret)
	require.NoError(t, err)
	require.NoError(t, env.twoFactor.VerifySetup(ctx, user.ID, code))

	backup := setup.BackupCodes[0]
	req := &dto.LoginRequest{Email: user.Email, Password: testutil.DefaultPassword, TOTPCode: backup}

	_, err = env.auth.Login(ctx, req, "", "")
	require.NoError(t, err)

	// 备用码只能使用一次
	_, err = env.auth.Login(ctx, req, "", "")
	assert.ErrorIs(t, err, ErrInvalidLoginCode)
}

func TestAuthService_Refresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := testutil.TestUser(t, env.db)
	login, err := env.auth.Login(ctx, &dto.LoginRequest{Email: user.Email, Password: testutil.DefaultPassword}, "", "")
	require.NoError(t, err)

	resp, err := env.auth.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)

	// access token 不能当 refresh 用
	_, err = env.auth.Refresh(ctx, login.AccessToken)
	assert.ErrorIs(t, err, jwt.ErrWrongTokenType)

	// 登出后 refresh 失效
	require.NoError(t, env.auth.Logout(ctx, user.ID))
	_, err = env.auth.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestAuthService_LogoutSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := testutil.TestUser(t, env.db)
	req := &dto.LoginRequest{Email: user.Email, Password: testutil.DefaultPassword}

	first, err := env.auth.Login(ctx, req, "", "")
	require.NoError(t, err)
	second, err := env.auth.Login(ctx, req, "", "")
	require.NoError(t, err)

	require.NoError(t, env.auth.LogoutSession(ctx, user.ID, first.SessionToken))

	_, err = env.sessions.Verify(ctx, first.SessionToken)
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, err = env.sessions.Verify(ctx, second.SessionToken)
	assert.NoError(t, err)

	err = env.auth.LogoutSession(ctx, user.ID, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAuthService_OAuthLogin_CreatesUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.google.profiles["c1"] = &oauth.Profile{ProviderUserID: "g1", Email: "b@x.com", Name: "Bob Smith"}

	urlResp, err := env.auth.OAuthURL(ctx, oauth.ProviderGoogle, "http://localhost/cb")
	require.NoError(t, err)
	assert.Contains(t, urlResp.URL, urlResp.State)

	resp, err := env.auth.OAuthLogin(ctx, &dto.OAuthLoginRequest{
		Provider: oauth.ProviderGoogle, Code: "c1", State: urlResp.State,
	}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "bobsmith", resp.User.Username)
	assert.Equal(t, "Bob", resp.User.FirstName)
	assert.Equal(t, "Smith", resp.User.LastName)
	assert.True(t, resp.User.IsVerified)

	accounts, err := env.accounts.ListByUser(ctx, resp.User.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "g1", accounts[0].ProviderUserID)
	require.NotNil(t, accounts[0].ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *accounts[0].ExpiresAt, time.Minute)

	// 第二次登录复用已绑定账号
	again, err := env.auth.OAuthLogin(ctx, &dto.OAuthLoginRequest{Provider: oauth.ProviderGoogle, Code: "c1", State: env.oauthState(t)}, "", "")
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, again.User.ID)

	accounts, err = env.accounts.ListByUser(ctx, resp.User.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestAuthService_OAuthLogin_LinksExistingEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	existing := testutil.TestUser(t, env.db, testutil.WithEmail("carol@example.com"))
	env.google.profiles["c2"] = &oauth.Profile{ProviderUserID: "g2", Email: "carol@example.com", Name: "Carol"}

	resp, err := env.auth.OAuthLogin(ctx, &dto.OAuthLoginRequest{Provider: oauth.ProviderGoogle, Code: "c2", State: env.oauthState(t)}, "", "")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, resp.User.ID)
}

func TestAuthService_OAuthLogin_UsernameCollision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	testutil.TestUser(t, env.db, testutil.WithUsername("bobsmith"))
	env.google.profiles["c3"] = &oauth.Profile{ProviderUserID: "g3", Email: "bob2@example.com", Name: "Bob Smith"}

	resp, err := env.auth.OAuthLogin(ctx, &dto.OAuthLoginRequest{Provider: oauth.ProviderGoogle, Code: "c3", State: env.oauthState(t)}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "bobsmith1", resp.User.Username)
}

func TestAuthService_OAuthLogin_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.google.profiles["noemail"] = &oauth.Profile{ProviderUserID: "g9"}

	_, err := env.auth.OAuthLogin(ctx, &dto.OAuthLoginRequest{Provider: "facebook", Code: "x"}, "", "")
	assert.ErrorIs(t, err, oauth.ErrUnsupportedProvider)

	_, err = env.auth.OAuthLogin(ctx, &dto.OAuthLoginRequest{Provider: oauth.ProviderGoogle, Code: "x", State: "forged"}, "", "")
	assert.ErrorIs(t, err, oauth.ErrInvalidState)

	// 缺少 state 不能绕过校验
	env.google.profiles["nostate"] = &oauth.Profile{ProviderUserID: "g8", Email: "nostate@example.com"}
	_, err = env.auth.OAuthLogin(ctx, &dto.OAuthLoginRequest{Provider: oauth.ProviderGoogle, Code: "nostate"}, "", "")
	assert.ErrorIs(t, err, oauth.ErrInvalidState)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	_, err = env.auth.OAuthLogin(ctx, &dto.OAuthLoginRequest{Provider: oauth.ProviderGoogle, Code: "unknown", State: env.oauthState(t)}, "", "")
	assert.ErrorIs(t, err, oauth.ErrUpstream)

	_, err = env.auth.OAuthLogin(ctx, &dto.OAuthLoginRequest{Provider: oauth.ProviderGoogle, Code: "noemail", State: env.oauthState(t)}, "", "")
	assert.ErrorIs(t, err, ErrOAuthEmailMissing)
}

func TestAuthService_PasswordReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := testutil.TestUser(t, env.db, testutil.WithEmail("reset@example.com"))
	login, err := env.auth.Login(ctx, &dto.LoginRequest{Email: user.Email, Password: testutil.DefaultPassword}, "", "")
	require.NoError(t, err)

	known, err := env.auth.RequestPasswordReset(ctx, "reset@example.com")
	require.NoError(t, err)
	unknown, err := env.auth.RequestPasswordReset(ctx, "missing@example.com")
	require.NoError(t, err)
	assert.Equal(t, known, unknown)
	assert.Equal(t, ResetRequestedMessage, known)

	token := env.notifier.resets[user.ID]
	require.NotEmpty(t, token)

	// 验证邮件的 token 不能用来重置
	verifyToken, err := env.tokens.IssueEmailVerification(user.ID)
	require.NoError(t, err)
	err = env.auth.ConfirmPasswordReset(ctx, verifyToken, "Newpass123")
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	err = env.auth.ConfirmPasswordReset(ctx, token, "weak")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	require.NoError(t, env.auth.ConfirmPasswordReset(ctx, token, "Newpass123"))

	_, err = env.sessions.Verify(ctx, login.SessionToken)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = env.auth.Login(ctx, &dto.LoginRequest{Email: user.Email, Password: testutil.DefaultPassword}, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, &dto.LoginRequest{Email: user.Email, Password: "Newpass123"}, "", "")
	assert.NoError(t, err)
}

func TestAuthService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := testutil.TestUser(t, env.db)

	err := env.auth.ChangePassword(ctx, user.ID, "Wrong1234", "Another123")
	assert.ErrorIs(t, err, ErrWrongPassword)

	err = env.auth.ChangePassword(ctx, user.ID, testutil.DefaultPassword, "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	require.NoError(t, env.auth.ChangePassword(ctx, user.ID, testutil.DefaultPassword, "Another123"))

	_, err = env.auth.Login(ctx, &dto.LoginRequest{Email: user.Email, Password: "Another123"}, "", "")
	assert.NoError(t, err)
}

func TestDeriveUsername(t *testing.T) {
	tests := []struct {
		name    string
		profile oauth.Profile
		want    string
	}{
		{"login first", oauth.Profile{Login: "octo-cat", Name: "Octo Cat"}, "octocat"},
		{"name", oauth.Profile{Name: "Bob Smith", Email: "b@x.com"}, "bobsmith"},
		{"email local part", oauth.Profile{Email: "Jane.Doe@x.com"}, "janedoe"},
		{"non ascii falls through", oauth.Profile{Name: "张三", Email: "zs@x.com"}, "zs"},
		{"nothing usable", oauth.Profile{}, "user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveUsername(&tt.profile))
		})
	}
}
