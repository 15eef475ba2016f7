package withdrawal

import (
	"testing"

	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cradoe/payrail/internal/config"
)

func testSettings() config.WithdrawalSettings {
	return config.WithdrawalSettings{
		MinimumAmount: 50,
		MaximumAmount: 5000,
	}
}

func testSnapshot() *BalanceSnapshot {
	return &BalanceSnapshot{
		TotalBalance:        200,
		WithdrawableBalance: 200,
	}
}

func TestValidateAmount(t *testing.T) {
	remaining := 150.0

	tests := []struct {
		name     string
		raw      string
		snapshot *BalanceSnapshot
		settings config.WithdrawalSettings
		want     string
		reason   AmountReason
	}{
		{
			name:     "comma input within limits",
			raw:      "100,50",
			snapshot: testSnapshot(),
			settings: testSettings(),
			want:     "100.50",
		},
		{
			name:     "below minimum",
			raw:      "10",
			snapshot: testSnapshot(),
			settings: testSettings(),
			reason:   AmountBelowMinimum,
		},
		{
			name:     "exactly minimum passes",
			raw:      "50",
			snapshot: testSnapshot(),
			settings: testSettings(),
			want:     "50",
		},
		{
			name:     "one cent below minimum fails",
			raw:      "49.99",
			snapshot: testSnapshot(),
			settings: testSettings(),
			reason:   AmountBelowMinimum,
		},
		{
			name:     "exactly maximum passes",
			raw:      "5000",
			snapshot: &BalanceSnapshot{WithdrawableBalance: 10000},
			settings: testSettings(),
			want:     "5000",
		},
		{
			name:     "one cent above maximum fails",
			raw:      "5000.01",
			snapshot: &BalanceSnapshot{WithdrawableBalance: 10000},
			settings: testSettings(),
			reason:   AmountAboveMaximum,
		},
		{
			name: "daily limit exceeded",
			raw:  "151",
			snapshot: &BalanceSnapshot{
				WithdrawableBalance:      200,
				RemainingWithdrawalLimit: &remaining,
			},
			settings: testSettings(),
			reason:   AmountDailyLimitExceeded,
		},
		{
			name:     "exceeds withdrawable balance",
			raw:      "200.01",
			snapshot: testSnapshot(),
			settings: testSettings(),
			reason:   AmountInsufficientBalance,
		},
		{
			name:     "zero limits are not enforced",
			raw:      "0.01",
			snapshot: testSnapshot(),
			settings: config.WithdrawalSettings{},
			want:     "0.01",
		},
		{
			name:     "empty input",
			raw:      "",
			snapshot: testSnapshot(),
			settings: testSettings(),
			reason:   AmountInvalid,
		},
		{
			name:     "non numeric input",
			raw:      "abc",
			snapshot: testSnapshot(),
			settings: testSettings(),
			reason:   AmountInvalid,
		},
		{
			name:     "zero amount",
			raw:      "0",
			snapshot: testSnapshot(),
			settings: config.WithdrawalSettings{},
			reason:   AmountInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, vErr := ValidateAmount(tt.raw, tt.snapshot, tt.settings)

			if tt.reason != "" {
				require.NotNil(t, vErr)
				assert.Equal(t, tt.reason, vErr.Reason)
				assert.NotEmpty(t, vErr.Message)
				return
			}

			require.Nil(t, vErr)
			assert.Zero(t, amount.Cmp(decimal.MustParse(tt.want)), "got %s, want %s", amount, tt.want)
		})
	}
}

func TestValidateAmountIsDeterministic(t *testing.T) {
	snapshot := testSnapshot()
	settings := testSettings()

	first, firstErr := ValidateAmount("100,50", snapshot, settings)
	second, secondErr := ValidateAmount("100,50", snapshot, settings)

	require.Nil(t, firstErr)
	require.Nil(t, secondErr)
	assert.Zero(t, first.Cmp(second))
}

func TestValidateAmountMessageInterpolation(t *testing.T) {
	_, vErr := ValidateAmount("10", testSnapshot(), testSettings())

	require.NotNil(t, vErr)
	assert.Contains(t, vErr.Message, "50.00")
}
