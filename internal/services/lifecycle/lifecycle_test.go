package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/vpn-shop-core/internal/config"
	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
	"github.com/magabrotheeeer/vpn-shop-core/internal/storage/repository"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetOrCreateUser(ctx context.Context, id int64, username, language string, referrerID *int64) (*models.User, error) {
	args := m.Called(ctx, id, username, language, referrerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *RepoMock) GetUser(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *RepoMock) MarkTrialUsed(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) CurrentSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *RepoMock) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *RepoMock) CreateSubscriptionWithIntent(ctx context.Context, sub models.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}
func (m *RepoMock) ApplyPurchase(ctx context.Context, p repository.ApplyPurchaseParams) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) ExtendSubscription(ctx context.Context, id string, expiresAt time.Time, status string) error {
	return m.Called(ctx, id, expiresAt, status).Error(0)
}
func (m *RepoMock) RevokeSubscription(ctx context.Context, id, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}
func (m *RepoMock) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}
func (m *RepoMock) CountAppliedPayments(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}
func (m *RepoMock) GetPromoCode(ctx context.Context, code string) (*models.PromoCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PromoCode), args.Error(1)
}
func (m *RepoMock) RedeemPromo(ctx context.Context, p repository.RedeemPromoParams) error {
	return m.Called(ctx, p).Error(0)
}
func (m *RepoMock) GrantReferralBonus(ctx context.Context, referrerID, referredID int64, bonusDays int, subscriptionID string, newExpiresAt time.Time) (bool, error) {
	args := m.Called(ctx, referrerID, referredID, bonusDays, subscriptionID, newExpiresAt)
	return args.Bool(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var testCfg = config.Lifecycle{
	TrialDays:             3,
	ExpiringSoonWindow:    3 * 24 * time.Hour,
	ReferralBonusDays:     7,
	DefaultExternalSquad:  "squad-default",
	DefaultInternalSquads: []string{"internal-1"},
}

func newTestService(repo *RepoMock, now time.Time) *Service {
	svc := New(repo, testCfg, newNoopLogger())
	svc.now = func() time.Time { return now }
	return svc
}

func TestService_ActivateTrial(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock)
		wantErr    error
	}{
		{
			name: "success",
			setupMocks: func(r *RepoMock) {
				r.On("GetUser", mock.Anything, int64(100)).
					Return(&models.User{ID: 100, TrialUsed: false}, nil).Once()
				r.On("MarkTrialUsed", mock.Anything, int64(100)).Return(true, nil).Once()
				r.On("CreateSubscriptionWithIntent", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
					return sub.UserID == 100 &&
						sub.Status == models.StatusTrialActive &&
						sub.ExpiresAt.Equal(now.AddDate(0, 0, 3)) &&
						*sub.ExternalSquad == "squad-default"
				})).Return(nil).Once()
			},
		},
		{
			name: "trial already used",
			setupMocks: func(r *RepoMock) {
				r.On("GetUser", mock.Anything, int64(100)).
					Return(&models.User{ID: 100, TrialUsed: true}, nil).Once()
			},
			wantErr: ErrTrialAlreadyUsed,
		},
		{
			name: "lost race on trial flag",
			setupMocks: func(r *RepoMock) {
				r.On("GetUser", mock.Anything, int64(100)).
					Return(&models.User{ID: 100, TrialUsed: false}, nil).Once()
				r.On("MarkTrialUsed", mock.Anything, int64(100)).Return(false, nil).Once()
			},
			wantErr: ErrTrialAlreadyUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			svc := newTestService(repo, now)

			sub, err := svc.ActivateTrial(context.Background(), 100)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, models.StatusTrialActive, sub.Status)
				assert.NotEmpty(t, sub.ID)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_ApplyPurchase_ExtendsCurrent(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	cur := &models.Subscription{
		ID:        "sub-1",
		UserID:    100,
		Status:    models.StatusTrialActive,
		ExpiresAt: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
	}
	payment := &models.Payment{ID: "pay-1", UserID: 100, DurationDays: 30}
	wantExpiry := time.Date(2024, 2, 9, 12, 0, 0, 0, time.UTC)

	repo := new(RepoMock)
	repo.On("CurrentSubscription", mock.Anything, int64(100)).Return(cur, nil).Once()
	repo.On("ApplyPurchase", mock.Anything, mock.MatchedBy(func(p repository.ApplyPurchaseParams) bool {
		return p.PaymentID == "pay-1" &&
			p.Subscription.ID == "sub-1" &&
			p.Subscription.Status == models.StatusActive &&
			p.Subscription.ExpiresAt.Equal(wantExpiry)
	})).Return(true, nil).Once()
	repo.On("GetUser", mock.Anything, int64(100)).
		Return(&models.User{ID: 100}, nil).Once()

	svc := newTestService(repo, now)
	res, err := svc.ApplyPurchase(context.Background(), payment)

	assert.NoError(t, err)
	assert.Equal(t, "sub-1", res.SubscriptionID)
	assert.True(t, res.ExpiresAt.Equal(wantExpiry))
	assert.False(t, res.AlreadyApplied)
	repo.AssertExpectations(t)
}

func TestService_ApplyPurchase_CreatesNewWhenNone(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	payment := &models.Payment{ID: "pay-2", UserID: 200, DurationDays: 30}

	repo := new(RepoMock)
	repo.On("CurrentSubscription", mock.Anything, int64(200)).
		Return(nil, repository.ErrNotFound).Once()
	repo.On("ApplyPurchase", mock.Anything, mock.MatchedBy(func(p repository.ApplyPurchaseParams) bool {
		return p.Subscription.UserID == 200 &&
			p.Subscription.Status == models.StatusActive &&
			p.Subscription.ID != "" &&
			p.Subscription.ExpiresAt.Equal(now.Add(30*24*time.Hour))
	})).Return(true, nil).Once()
	repo.On("GetUser", mock.Anything, int64(200)).
		Return(&models.User{ID: 200}, nil).Once()

	svc := newTestService(repo, now)
	res, err := svc.ApplyPurchase(context.Background(), payment)

	assert.NoError(t, err)
	assert.NotEmpty(t, res.SubscriptionID)
	repo.AssertExpectations(t)
}

func TestService_ApplyPurchase_DuplicateReturnsPriorResult(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	subID := "sub-1"
	appliedExpiry := time.Date(2024, 2, 9, 12, 0, 0, 0, time.UTC)
	payment := &models.Payment{ID: "pay-1", UserID: 100, DurationDays: 30}

	repo := new(RepoMock)
	repo.On("CurrentSubscription", mock.Anything, int64(100)).
		Return(&models.Subscription{ID: subID, UserID: 100, Status: models.StatusActive, ExpiresAt: appliedExpiry}, nil).Once()
	repo.On("ApplyPurchase", mock.Anything, mock.Anything).Return(false, nil).Once()
	repo.On("GetPayment", mock.Anything, "pay-1").
		Return(&models.Payment{ID: "pay-1", UserID: 100, Status: models.PaymentApplied, SubscriptionID: &subID}, nil).Once()
	repo.On("GetSubscription", mock.Anything, subID).
		Return(&models.Subscription{ID: subID, UserID: 100, Status: models.StatusActive, ExpiresAt: appliedExpiry}, nil).Once()

	svc := newTestService(repo, now)
	res, err := svc.ApplyPurchase(context.Background(), payment)

	assert.NoError(t, err)
	assert.True(t, res.AlreadyApplied)
	assert.Equal(t, subID, res.SubscriptionID)
	assert.True(t, res.ExpiresAt.Equal(appliedExpiry))
	repo.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestService_ApplyPurchase_ReferralBonusOnFirstPayment(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	referrerID := int64(50)
	payment := &models.Payment{ID: "pay-3", UserID: 100, DurationDays: 30}
	refSub := &models.Subscription{
		ID:        "sub-ref",
		UserID:    referrerID,
		Status:    models.StatusActive,
		ExpiresAt: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
	}
	wantBonusExpiry := refSub.ExpiresAt.Add(7 * 24 * time.Hour)

	repo := new(RepoMock)
	repo.On("CurrentSubscription", mock.Anything, int64(100)).
		Return(nil, repository.ErrNotFound).Once()
	repo.On("ApplyPurchase", mock.Anything, mock.Anything).Return(true, nil).Once()
	repo.On("GetUser", mock.Anything, int64(100)).
		Return(&models.User{ID: 100, ReferrerID: &referrerID}, nil).Once()
	repo.On("CountAppliedPayments", mock.Anything, int64(100)).Return(1, nil).Once()
	repo.On("CurrentSubscription", mock.Anything, referrerID).Return(refSub, nil).Once()
	repo.On("GrantReferralBonus", mock.Anything, referrerID, int64(100), 7, "sub-ref",
		mock.MatchedBy(func(ts time.Time) bool { return ts.Equal(wantBonusExpiry) })).
		Return(true, nil).Once()

	svc := newTestService(repo, now)
	_, err := svc.ApplyPurchase(context.Background(), payment)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestService_ApplyPurchase_NoBonusOnSecondPayment(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	referrerID := int64(50)
	payment := &models.Payment{ID: "pay-4", UserID: 100, DurationDays: 30}

	repo := new(RepoMock)
	repo.On("CurrentSubscription", mock.Anything, int64(100)).
		Return(nil, repository.ErrNotFound).Once()
	repo.On("ApplyPurchase", mock.Anything, mock.Anything).Return(true, nil).Once()
	repo.On("GetUser", mock.Anything, int64(100)).
		Return(&models.User{ID: 100, ReferrerID: &referrerID}, nil).Once()
	repo.On("CountAppliedPayments", mock.Anything, int64(100)).Return(2, nil).Once()

	svc := newTestService(repo, now)
	_, err := svc.ApplyPurchase(context.Background(), payment)

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "GrantReferralBonus",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestService_ApplyPromo(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	promoExpiry := now.Add(-time.Hour)
	cur := &models.Subscription{
		ID:        "sub-1",
		UserID:    100,
		Status:    models.StatusActive,
		ExpiresAt: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock)
		wantErr    error
	}{
		{
			name: "success",
			setupMocks: func(r *RepoMock) {
				r.On("GetPromoCode", mock.Anything, "BONUS5").
					Return(&models.PromoCode{Code: "BONUS5", BonusDays: 5, MaxUses: 10, UsedCount: 3, Active: true}, nil).Once()
				r.On("CurrentSubscription", mock.Anything, int64(100)).Return(cur, nil).Once()
				r.On("RedeemPromo", mock.Anything, mock.MatchedBy(func(p repository.RedeemPromoParams) bool {
					return p.UserID == 100 && p.Code == "BONUS5" &&
						p.SubscriptionID == "sub-1" &&
						p.NewExpiresAt.Equal(cur.ExpiresAt.Add(5*24*time.Hour)) &&
						p.NewStatus == models.StatusActive
				})).Return(nil).Once()
			},
		},
		{
			name: "unknown code",
			setupMocks: func(r *RepoMock) {
				r.On("GetPromoCode", mock.Anything, "BONUS5").
					Return(nil, repository.ErrNotFound).Once()
			},
			wantErr: ErrPromoInvalid,
		},
		{
			name: "deactivated code",
			setupMocks: func(r *RepoMock) {
				r.On("GetPromoCode", mock.Anything, "BONUS5").
					Return(&models.PromoCode{Code: "BONUS5", BonusDays: 5, MaxUses: 10, Active: false}, nil).Once()
			},
			wantErr: ErrPromoInvalid,
		},
		{
			name: "expired code",
			setupMocks: func(r *RepoMock) {
				r.On("GetPromoCode", mock.Anything, "BONUS5").
					Return(&models.PromoCode{Code: "BONUS5", BonusDays: 5, MaxUses: 10, Active: true, ExpiresAt: &promoExpiry}, nil).Once()
			},
			wantErr: ErrPromoExpired,
		},
		{
			name: "usage limit reached",
			setupMocks: func(r *RepoMock) {
				r.On("GetPromoCode", mock.Anything, "BONUS5").
					Return(&models.PromoCode{Code: "BONUS5", BonusDays: 5, MaxUses: 10, UsedCount: 10, Active: true}, nil).Once()
			},
			wantErr: ErrPromoExhausted,
		},
		{
			name: "no subscription to extend",
			setupMocks: func(r *RepoMock) {
				r.On("GetPromoCode", mock.Anything, "BONUS5").
					Return(&models.PromoCode{Code: "BONUS5", BonusDays: 5, MaxUses: 10, Active: true}, nil).Once()
				r.On("CurrentSubscription", mock.Anything, int64(100)).
					Return(nil, repository.ErrNotFound).Once()
			},
			wantErr: ErrNoActiveSubscription,
		},
		{
			name: "already redeemed by user",
			setupMocks: func(r *RepoMock) {
				r.On("GetPromoCode", mock.Anything, "BONUS5").
					Return(&models.PromoCode{Code: "BONUS5", BonusDays: 5, MaxUses: 10, Active: true}, nil).Once()
				r.On("CurrentSubscription", mock.Anything, int64(100)).Return(cur, nil).Once()
				r.On("RedeemPromo", mock.Anything, mock.Anything).
					Return(repository.ErrPromoAlreadyRedeemed).Once()
			},
			wantErr: ErrPromoAlreadyUsed,
		},
		{
			name: "limit reached concurrently",
			setupMocks: func(r *RepoMock) {
				r.On("GetPromoCode", mock.Anything, "BONUS5").
					Return(&models.PromoCode{Code: "BONUS5", BonusDays: 5, MaxUses: 10, UsedCount: 9, Active: true}, nil).Once()
				r.On("CurrentSubscription", mock.Anything, int64(100)).Return(cur, nil).Once()
				r.On("RedeemPromo", mock.Anything, mock.Anything).
					Return(repository.ErrPromoExhausted).Once()
			},
			wantErr: ErrPromoExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			svc := newTestService(repo, now)

			res, err := svc.ApplyPromo(context.Background(), 100, "BONUS5")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "sub-1", res.SubscriptionID)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_ApplyPromo_ExpiredSubscriptionBecomesActive(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	cur := &models.Subscription{
		ID:        "sub-1",
		UserID:    100,
		Status:    models.StatusExpired,
		ExpiresAt: now.Add(-48 * time.Hour),
	}

	repo := new(RepoMock)
	repo.On("GetPromoCode", mock.Anything, "BONUS5").
		Return(&models.PromoCode{Code: "BONUS5", BonusDays: 5, MaxUses: 10, Active: true}, nil).Once()
	repo.On("CurrentSubscription", mock.Anything, int64(100)).Return(cur, nil).Once()
	repo.On("RedeemPromo", mock.Anything, mock.MatchedBy(func(p repository.RedeemPromoParams) bool {
		return p.NewStatus == models.StatusActive &&
			p.NewExpiresAt.Equal(now.Add(5*24*time.Hour))
	})).Return(nil).Once()

	svc := newTestService(repo, now)
	_, err := svc.ApplyPromo(context.Background(), 100, "BONUS5")

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestService_Revoke(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetSubscription", mock.Anything, "sub-1").
		Return(&models.Subscription{ID: "sub-1", UserID: 100, Status: models.StatusActive}, nil).Once()
	repo.On("RevokeSubscription", mock.Anything, "sub-1", "refund").Return(nil).Once()

	svc := newTestService(repo, time.Now())
	err := svc.Revoke(context.Background(), "sub-1", "refund")

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestService_Revoke_NotFound(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetSubscription", mock.Anything, "missing").
		Return(nil, repository.ErrNotFound).Once()

	svc := newTestService(repo, time.Now())
	err := svc.Revoke(context.Background(), "missing", "refund")

	assert.ErrorIs(t, err, repository.ErrNotFound)
	repo.AssertExpectations(t)
}

func TestService_AdminExtend(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		ID:        "sub-1",
		UserID:    100,
		Status:    models.StatusExpired,
		ExpiresAt: now.Add(-24 * time.Hour),
	}

	tests := []struct {
		name       string
		until      time.Time
		wantStatus string
	}{
		{
			name:       "future date reactivates",
			until:      now.Add(10 * 24 * time.Hour),
			wantStatus: models.StatusActive,
		},
		{
			name:       "past date expires immediately",
			until:      now.Add(-time.Hour),
			wantStatus: models.StatusExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			repo.On("GetSubscription", mock.Anything, "sub-1").Return(sub, nil).Once()
			repo.On("ExtendSubscription", mock.Anything, "sub-1",
				mock.MatchedBy(func(ts time.Time) bool { return ts.Equal(tt.until) }),
				tt.wantStatus).Return(nil).Once()

			svc := newTestService(repo, now)
			err := svc.AdminExtend(context.Background(), "sub-1", tt.until)

			assert.NoError(t, err)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_Status(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock)
		want       string
	}{
		{
			name: "no subscription",
			setupMocks: func(r *RepoMock) {
				r.On("GetUser", mock.Anything, int64(100)).
					Return(&models.User{ID: 100, TrialUsed: true}, nil).Once()
				r.On("CurrentSubscription", mock.Anything, int64(100)).
					Return(nil, repository.ErrNotFound).Once()
			},
			want: StatusNone,
		},
		{
			name: "active",
			setupMocks: func(r *RepoMock) {
				r.On("GetUser", mock.Anything, int64(100)).
					Return(&models.User{ID: 100}, nil).Once()
				r.On("CurrentSubscription", mock.Anything, int64(100)).
					Return(&models.Subscription{ID: "sub-1", Status: models.StatusActive, ExpiresAt: now.Add(30 * 24 * time.Hour)}, nil).Once()
			},
			want: models.StatusActive,
		},
		{
			name: "expiring soon",
			setupMocks: func(r *RepoMock) {
				r.On("GetUser", mock.Anything, int64(100)).
					Return(&models.User{ID: 100}, nil).Once()
				r.On("CurrentSubscription", mock.Anything, int64(100)).
					Return(&models.Subscription{ID: "sub-1", Status: models.StatusActive, ExpiresAt: now.Add(24 * time.Hour)}, nil).Once()
			},
			want: models.StatusExpiringSoon,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			svc := newTestService(repo, now)

			got, err := svc.Status(context.Background(), 100)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_ApplyPurchase_RepoError(t *testing.T) {
	repo := new(RepoMock)
	repo.On("CurrentSubscription", mock.Anything, int64(100)).
		Return(nil, errors.New("connection refused")).Once()

	svc := newTestService(repo, time.Now())
	_, err := svc.ApplyPurchase(context.Background(), &models.Payment{ID: "pay-1", UserID: 100, DurationDays: 30})

	assert.Error(t, err)
	repo.AssertExpectations(t)
}
