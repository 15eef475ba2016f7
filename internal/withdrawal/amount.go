package withdrawal

import (
	"fmt"

	"github.com/govalues/decimal"

	"github.com/cradoe/payrail/internal/config"
	"github.com/cradoe/payrail/internal/money"
)

// BalanceSnapshot is an immutable view of the user's funds, fetched fresh
// before each validation pass and owned by the orchestrator for the duration
// of one submission attempt.
type BalanceSnapshot struct {
	TotalBalance        float64
	WithdrawableBalance float64
	BlockedBalance      float64

	// RemainingWithdrawalLimit is nil when no daily limit is configured.
	RemainingWithdrawalLimit *float64
}

type AmountReason string

const (
	AmountInvalid             AmountReason = "invalid"
	AmountBelowMinimum        AmountReason = "below-minimum"
	AmountAboveMaximum        AmountReason = "above-maximum"
	AmountDailyLimitExceeded  AmountReason = "daily-limit-exceeded"
	AmountInsufficientBalance AmountReason = "insufficient-balance"
)

type AmountError struct {
	Reason  AmountReason
	Message string
}

func (e *AmountError) Error() string {
	return e.Message
}

// ValidateAmount normalizes raw user input and checks it against the static
// settings and the dynamic balance snapshot. It has no side effects and is
// deterministic: the same (raw, snapshot, settings) triple always yields the
// same verdict, so it is safe to re-run on every keystroke.
//
// Checks are applied in a fixed precedence order: parseability, minimum,
// maximum, remaining daily limit, withdrawable balance. Zero-valued limits are
// not enforced. Both sides of every comparison are rounded to two decimals
// half-up before comparing.
func ValidateAmount(raw string, snapshot *BalanceSnapshot, settings config.WithdrawalSettings) (decimal.Decimal, *AmountError) {
	amount, err := money.ParseAmount(raw)
	if err != nil {
		return decimal.Decimal{}, &AmountError{
			Reason:  AmountInvalid,
			Message: "Enter a valid amount",
		}
	}

	if !amount.IsPos() {
		return decimal.Decimal{}, &AmountError{
			Reason:  AmountInvalid,
			Message: "Enter a valid amount",
		}
	}

	if limit, ok := round2(settings.MinimumAmount); ok && limit.IsPos() && amount.Cmp(limit) < 0 {
		return decimal.Decimal{}, &AmountError{
			Reason:  AmountBelowMinimum,
			Message: fmt.Sprintf("Minimum withdrawal amount is %s", money.Format(limit)),
		}
	}

	if limit, ok := round2(settings.MaximumAmount); ok && limit.IsPos() && amount.Cmp(limit) > 0 {
		return decimal.Decimal{}, &AmountError{
			Reason:  AmountAboveMaximum,
			Message: fmt.Sprintf("Maximum withdrawal amount is %s", money.Format(limit)),
		}
	}

	if snapshot.RemainingWithdrawalLimit != nil {
		if remaining, ok := round2(*snapshot.RemainingWithdrawalLimit); ok && remaining.IsPos() && amount.Cmp(remaining) > 0 {
			return decimal.Decimal{}, &AmountError{
				Reason:  AmountDailyLimitExceeded,
				Message: fmt.Sprintf("Daily withdrawal limit exceeded, you can withdraw up to %s today", money.Format(remaining)),
			}
		}
	}

	if withdrawable, ok := round2(snapshot.WithdrawableBalance); ok && amount.Cmp(withdrawable) > 0 {
		return decimal.Decimal{}, &AmountError{
			Reason:  AmountInsufficientBalance,
			Message: "Insufficient balance",
		}
	}

	return amount, nil
}

func round2(f float64) (decimal.Decimal, bool) {
	d, err := money.FromFloat(f)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
