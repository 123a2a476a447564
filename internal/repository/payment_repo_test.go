package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/model"
	"github.com/qs3c/calmness_server/internal/testutil"
)

func TestPaymentRepository_IdempotencyKeyUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	ctx := context.Background()
	user := testutil.TestUser(t, db)
	key := "idem-1"

	first := &model.Payment{UserID: user.ID, ServiceCode: "svc", Amount: 10, Currency: "USD", Status: model.PaymentPending, Provider: model.ProviderCard, IdempotencyKey: &key}
	require.NoError(t, repo.Create(ctx, first))

	second := &model.Payment{UserID: user.ID, ServiceCode: "svc", Amount: 10, Currency: "USD", Status: model.PaymentPending, Provider: model.ProviderCard, IdempotencyKey: &key}
	err := repo.Create(ctx, second)
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))

	found, err := repo.GetByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestPaymentRepository_NullKeysDoNotCollide(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	ctx := context.Background()
	user := testutil.TestUser(t, db)

	for i := 0; i < 2; i++ {
		p := &model.Payment{UserID: user.ID, ServiceCode: "svc", Amount: 5, Currency: "USD", Status: model.PaymentPending, Provider: model.ProviderBank}
		require.NoError(t, repo.Create(ctx, p))
	}
}

func TestPaymentRepository_TotalSucceeded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	user := testutil.TestUser(t, db)
	testutil.TestPayment(t, db, user.ID, model.PaymentSucceeded, 19.99)
	testutil.TestPayment(t, db, user.ID, model.PaymentSucceeded, 5.01)
	testutil.TestPayment(t, db, user.ID, model.PaymentFailed, 100)

	total, err := repo.TotalSucceeded(context.Background(), user.ID)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, total, 0.001)
}

func TestPaymentMethodRepository_Deactivate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentMethodRepository(db)
	ctx := context.Background()
	owner := testutil.TestUser(t, db)
	stranger := testutil.TestUser(t, db)

	method := &model.PaymentMethod{UserID: owner.ID, Provider: model.ProviderCard, Label: "Visa", DetailsEncrypted: "sealed", IsActive: true}
	require.NoError(t, repo.Create(ctx, method))

	ok, err := repo.Deactivate(ctx, method.ID, stranger.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Deactivate(ctx, method.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	methods, err := repo.ListActive(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, methods)
}
