package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
)

func TestNextExpiry(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		current time.Time
		d       time.Duration
		want    time.Time
	}{
		{
			name:    "active subscription extends from current expiry",
			current: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
			d:       30 * 24 * time.Hour,
			want:    time.Date(2024, 2, 9, 12, 0, 0, 0, time.UTC),
		},
		{
			name:    "expired subscription extends from now",
			current: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
			d:       30 * 24 * time.Hour,
			want:    time.Date(2024, 2, 4, 12, 0, 0, 0, time.UTC),
		},
		{
			name:    "expiry equal to now extends from now",
			current: now,
			d:       7 * 24 * time.Hour,
			want:    now.Add(7 * 24 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextExpiry(tt.current, now, tt.d)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	window := 3 * 24 * time.Hour

	tests := []struct {
		name string
		sub  *models.Subscription
		want string
	}{
		{
			name: "nil subscription",
			sub:  nil,
			want: StatusNone,
		},
		{
			name: "revoked stays revoked regardless of expiry",
			sub:  &models.Subscription{Status: models.StatusRevoked, ExpiresAt: now.Add(30 * 24 * time.Hour)},
			want: models.StatusRevoked,
		},
		{
			name: "stored expired",
			sub:  &models.Subscription{Status: models.StatusExpired, ExpiresAt: now.Add(-time.Hour)},
			want: models.StatusExpired,
		},
		{
			name: "active past expiry counts as expired before reconciliation",
			sub:  &models.Subscription{Status: models.StatusActive, ExpiresAt: now.Add(-time.Minute)},
			want: models.StatusExpired,
		},
		{
			name: "expiry exactly now is expired",
			sub:  &models.Subscription{Status: models.StatusActive, ExpiresAt: now},
			want: models.StatusExpired,
		},
		{
			name: "active inside warning window",
			sub:  &models.Subscription{Status: models.StatusActive, ExpiresAt: now.Add(window - time.Hour)},
			want: models.StatusExpiringSoon,
		},
		{
			name: "trial inside warning window",
			sub:  &models.Subscription{Status: models.StatusTrialActive, ExpiresAt: now.Add(24 * time.Hour)},
			want: models.StatusExpiringSoon,
		},
		{
			name: "active outside warning window",
			sub:  &models.Subscription{Status: models.StatusActive, ExpiresAt: now.Add(30 * 24 * time.Hour)},
			want: models.StatusActive,
		},
		{
			name: "trial outside warning window",
			sub:  &models.Subscription{Status: models.StatusTrialActive, ExpiresAt: now.Add(5 * 24 * time.Hour)},
			want: models.StatusTrialActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.sub, now, window)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateDoesNotMutate(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		ID:        "sub-1",
		Status:    models.StatusActive,
		ExpiresAt: now.Add(-time.Hour),
	}
	before := *sub

	_ = Evaluate(sub, now, 3*24*time.Hour)

	assert.Equal(t, before, *sub)
}
