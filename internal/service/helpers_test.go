package service

import (
	"context"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/config"
	"github.com/qs3c/calmness_server/internal/model"
	"github.com/qs3c/calmness_server/internal/pkg/jwt"
	"github.com/qs3c/calmness_server/internal/pkg/logger"
	"github.com/qs3c/calmness_server/internal/pkg/mfa"
	"github.com/qs3c/calmness_server/internal/pkg/oauth"
	"github.com/qs3c/calmness_server/internal/pkg/sealer"
	"github.com/qs3c/calmness_server/internal/repository"
	"github.com/qs3c/calmness_server/internal/testutil"
)

type sentCode struct {
	UserID      int64
	Channel     string
	Destination string
	Code        string
}

// fakeNotifier 记录所有通知，err 非空时全部返回该错误
type fakeNotifier struct {
	mu            sync.Mutex
	err           error
	verifications map[int64]string
	resets        map[int64]string
	welcomes      []int64
	codes         []sentCode
	reminders     []int64
	revokes       []int64
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		verifications: make(map[int64]string),
		resets:        make(map[int64]string),
	}
}

func (n *fakeNotifier) SendVerificationEmail(ctx context.Context, user *model.User, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.verifications[user.ID] = token
	return nil
}

func (n *fakeNotifier) SendPasswordReset(ctx context.Context, user *model.User, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.resets[user.ID] = token
	return nil
}

func (n *fakeNotifier) SendWelcome(ctx context.Context, user *model.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.welcomes = append(n.welcomes, user.ID)
	return nil
}

func (n *fakeNotifier) SendTwoFactorCode(ctx context.Context, userID int64, channel, destination, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.codes = append(n.codes, sentCode{UserID: userID, Channel: channel, Destination: destination, Code: code})
	return nil
}

func (n *fakeNotifier) SendExpiryReminder(ctx context.Context, user *model.User, sub *model.Subscription) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.reminders = append(n.reminders, sub.ID)
	return nil
}

func (n *fakeNotifier) RevokeChannelAccess(ctx context.Context, sub *model.Subscription) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.revokes = append(n.revokes, sub.ID)
	return nil
}

func (n *fakeNotifier) lastCode() sentCode {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.codes) == 0 {
		return sentCode{}
	}
	return n.codes[len(n.codes)-1]
}

// fakeProvider 按授权码返回预置的第三方资料
type fakeProvider struct {
	name     string
	profiles map[string]*oauth.Profile
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*oauth.Token, error) {
	if _, ok := p.profiles[code]; !ok {
		return nil, oauth.ErrUpstream
	}
	return &oauth.Token{AccessToken: "at-" + code, RefreshToken: "rt-" + code}, nil
}

func (p *fakeProvider) FetchProfile(ctx context.Context, token *oauth.Token) (*oauth.Profile, error) {
	code := token.AccessToken[len("at-"):]
	return p.profiles[code], nil
}

type testEnv struct {
	db        *gorm.DB
	users     *repository.UserRepository
	accounts  *repository.OAuthAccountRepository
	codes     *repository.TwoFactorRepository
	tokens    *jwt.Manager
	mfa       *mfa.Authenticator
	notifier  *fakeNotifier
	google    *fakeProvider
	states    *oauth.StateStore
	sessions  *SessionService
	twoFactor *TwoFactorService
	auth      *AuthService
	billing   *BillingService
	subs      *SubscriptionService
	userSvc   *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	rdb, _, cleanup := testutil.SetupTestRedis(t)
	t.Cleanup(cleanup)

	env := &testEnv{
		db:       db,
		users:    repository.NewUserRepository(db),
		accounts: repository.NewOAuthAccountRepository(db),
		codes:    repository.NewTwoFactorRepository(db),
		tokens:   jwt.NewManager(&config.JWTConfig{Secret: "test-secret"}),
		mfa:      mfa.New("Calmness Test"),
		notifier: newFakeNotifier(),
		google:   &fakeProvider{name: oauth.ProviderGoogle, profiles: map[string]*oauth.Profile{}},
		states:   oauth.NewStateStore(rdb),
	}

	sessionRepo := repository.NewSessionRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	env.sessions = NewSessionService(sessionRepo, env.users, 0)
	env.twoFactor = NewTwoFactorService(db, env.users, env.codes, env.mfa, env.notifier)
	env.twoFactor.bcryptCost = bcrypt.MinCost

	env.auth = NewAuthService(db, env.users, env.accounts, env.sessions, env.twoFactor, env.tokens,
		oauth.NewRegistry(env.google), env.states, env.notifier, logger.Discard())
	env.auth.bcryptCost = bcrypt.MinCost

	seal, err := sealer.Ephemeral()
	if err != nil {
		t.Fatalf("Failed to create sealer: %v", err)
	}
	env.billing = NewBillingService(db, paymentRepo, repository.NewPaymentMethodRepository(db), subRepo,
		repository.NewAdminConfigRepository(db), repository.NewAuditRepository(db), seal)
	env.subs = NewSubscriptionService(subRepo, env.notifier, logger.Discard(), 0)
	env.userSvc = NewUserService(env.users, subRepo, paymentRepo)

	return env
}

// oauthState 走 OAuthURL 签发一个 google state
func (e *testEnv) oauthState(t *testing.T) string {
	t.Helper()
	resp, err := e.auth.OAuthURL(context.Background(), oauth.ProviderGoogle, "http://localhost/cb")
	if err != nil {
		t.Fatalf("Failed to issue state: %v", err)
	}
	return resp.State
}

func (e *testEnv) totpUser(t *testing.T) (*model.User, string) {
	t.Helper()
	enrollment, err := e.mfa.Enroll("totp@example.com")
	if err != nil {
		t.Fatalf("Failed to enroll: %v", err)
	}
	user := testutil.TestUser(t, e.db, testutil.WithTwoFactor(enrollment.Secret))
	return user, enrollment.Secret
}
