package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/calmness_server/internal/model"
	"github.com/qs3c/calmness_server/internal/repository"
	"github.com/qs3c/calmness_server/internal/testutil"
)

func setupUserService(t *testing.T) (*UserService, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	service := NewUserService(
		repository.NewUserRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewPaymentRepository(db),
	)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return service, cleanup
}

func TestUserService_CurrentUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	service := NewUserService(
		repository.NewUserRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewPaymentRepository(db),
	)

	user := testutil.TestUser(t, db, testutil.WithUsername("profileuser"))

	info, err := service.CurrentUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, info.ID)
	assert.Equal(t, "profileuser", info.Username)
	assert.True(t, info.IsVerified)
}

func TestUserService_CurrentUser_NotFound(t *testing.T) {
	service, cleanup := setupUserService(t)
	defer cleanup()

	_, err := service.CurrentUser(context.Background(), 99999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_Dashboard(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	service := NewUserService(
		repository.NewUserRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewPaymentRepository(db),
	)

	user := testutil.TestUser(t, db)
	testutil.TestSubscription(t, db, user.ID)
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubscriptionStatus(model.SubscriptionExpired))
	testutil.TestPayment(t, db, user.ID, model.PaymentSucceeded, 10)
	testutil.TestPayment(t, db, user.ID, model.PaymentSucceeded, 15.5)
	testutil.TestPayment(t, db, user.ID, model.PaymentPending, 100)

	dash, err := service.Dashboard(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), dash.TotalSubscriptions)
	assert.Equal(t, int64(1), dash.ActiveSubscriptions)
	assert.InDelta(t, 25.5, dash.TotalSpent, 0.001)
	assert.Equal(t, user.CreatedAt.Unix(), dash.MemberSince.Unix())
}

func TestUserService_Dashboard_NotFound(t *testing.T) {
	service, cleanup := setupUserService(t)
	defer cleanup()

	_, err := service.Dashboard(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
