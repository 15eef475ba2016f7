package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/cradoe/payrail/internal/context"
	"github.com/cradoe/payrail/internal/funcs"
	"github.com/cradoe/payrail/internal/money"
	"github.com/cradoe/payrail/internal/repository"
	"github.com/cradoe/payrail/internal/request"
	"github.com/cradoe/payrail/internal/response"
	"github.com/cradoe/payrail/internal/validator"
	"github.com/cradoe/payrail/internal/withdrawal"
)

type withdrawalResponse struct {
	ID                   string    `json:"id"`
	Amount               float64   `json:"amount"`
	Commission           *float64  `json:"commission"`
	Status               int       `json:"status"`
	StatusText           string    `json:"status_text"`
	Message              string    `json:"message,omitempty"`
	FailureReason        string    `json:"failure_reason,omitempty"`
	MaskedIBAN           string    `json:"masked_iban"`
	AccountHolderName    string    `json:"account_holder_name"`
	ReceiverName         string    `json:"receiver_name,omitempty"`
	PaymentReferenceID   string    `json:"payment_reference_id,omitempty"`
	BankTransactionRefNo string    `json:"bank_transaction_ref_no,omitempty"`
	BankPaymentNo        string    `json:"bank_payment_no,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

func newWithdrawalResponse(record *repository.Withdrawal) withdrawalResponse {
	resp := withdrawalResponse{
		ID:                   record.ID,
		Amount:               record.Amount,
		Status:               record.Status,
		StatusText:           withdrawal.Status(record.Status).String(),
		Message:              record.Message.String,
		FailureReason:        record.FailureReason.String,
		MaskedIBAN:           record.MaskedIBAN,
		AccountHolderName:    record.AccountHolderName,
		ReceiverName:         record.ReceiverName.String,
		PaymentReferenceID:   record.PaymentReferenceID.String,
		BankTransactionRefNo: record.BankTransactionRefNo.String,
		BankPaymentNo:        record.BankPaymentNo.String,
		CreatedAt:            record.CreatedAt,
	}

	if record.Commission.Valid {
		commission := record.Commission.Float64
		resp.Commission = &commission
	}

	return resp
}

type submitResponse struct {
	withdrawalResponse
	CommissionKnown bool `json:"commission_known"`
	OtpCooldown     int  `json:"otp_cooldown_seconds,omitempty"`
}

// Submission accepts the amount exactly as the user typed it; normalization
// and the full validation pass happen inside the orchestrator against a fresh
// balance snapshot.
func (h *RouteHandler) HandleWithdrawalSubmit(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	var input struct {
		Amount            string              `json:"amount"`
		IBAN              string              `json:"iban"`
		AccountHolderName string              `json:"account_holder_name"`
		Validator         validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	iban := withdrawal.NormalizeIBAN(input.IBAN)

	input.Validator.Check(validator.NotBlank(input.Amount), "Amount is required")
	input.Validator.Check(validator.NotBlank(iban), "IBAN is required")
	input.Validator.Check(validator.Matches(iban, validator.RgxIBAN), "Must be a valid TR IBAN")
	input.Validator.Check(validator.NotBlank(input.AccountHolderName), "Account holder name is required")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	outcome, err := h.Orchestrator.Submit(r.Context(), user, &withdrawal.SubmitInput{
		Amount:            input.Amount,
		IBAN:              iban,
		AccountHolderName: input.AccountHolderName,
	})
	if err != nil {
		var amountErr *withdrawal.AmountError
		switch {
		case errors.As(err, &amountErr):
			input.Validator.AddError(amountErr.Message)
			h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		case errors.Is(err, withdrawal.ErrAnotherInFlight):
			h.ErrHandler.Conflict(w, r, err)
		case errors.Is(err, withdrawal.ErrWalletNotFound):
			h.ErrHandler.NotFound(w, r)
		default:
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	data := submitResponse{
		withdrawalResponse: newWithdrawalResponse(outcome.Withdrawal),
		CommissionKnown:    outcome.CommissionKnown,
		OtpCooldown:        outcome.OtpCooldown,
	}

	err = response.JSONCreatedResponse(w, data, outcome.Message)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleWithdrawalVerifyOtp(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	withdrawalID := r.PathValue("id")

	var input struct {
		Code      string              `json:"otp_code"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	// a malformed code is rejected here so it never consumes a verification
	// attempt
	input.Validator.Check(validator.NotBlank(input.Code), "Code is required")
	input.Validator.Check(validator.Matches(input.Code, validator.RgxOtpCode), "Code must be 6 digits")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	outcome, err := h.Orchestrator.VerifyOtp(r.Context(), user, withdrawalID, input.Code)
	if err != nil {
		switch {
		case errors.Is(err, withdrawal.ErrNotFound):
			h.ErrHandler.NotFound(w, r)
		case errors.Is(err, withdrawal.ErrNotAwaitingOtp), errors.Is(err, withdrawal.ErrVerifyInProgress):
			h.ErrHandler.Conflict(w, r, err)
		case errors.Is(err, withdrawal.ErrWalletNotFound):
			h.ErrHandler.NotFound(w, r)
		default:
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	data := submitResponse{
		withdrawalResponse: newWithdrawalResponse(outcome.Withdrawal),
		OtpCooldown:        outcome.OtpCooldown,
	}

	err = response.JSONOkResponse(w, data, outcome.Message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleWithdrawalResendOtp(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	withdrawalID := r.PathValue("id")

	remaining, err := h.Orchestrator.ResendOtp(user, withdrawalID)
	if err != nil {
		switch {
		case errors.Is(err, withdrawal.ErrNotFound):
			h.ErrHandler.NotFound(w, r)
		case errors.Is(err, withdrawal.ErrNotAwaitingOtp):
			h.ErrHandler.Conflict(w, r, err)
		case errors.Is(err, withdrawal.ErrResendCooldown):
			data := map[string]int{"retry_after_seconds": remaining}
			writeErr := response.JSONErrorResponse(w, data, "Please wait before requesting another code", http.StatusConflict, nil)
			if writeErr != nil {
				h.ErrHandler.ServerError(w, r, writeErr)
			}
		default:
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	data := map[string]int{"otp_cooldown_seconds": remaining}

	message := "A new code has been sent to your email address"

	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// History is a read-only projection ordered by submission time, newest first.
type historyItem struct {
	ID                   string    `json:"id"`
	Amount               float64   `json:"amount"`
	FormattedAmount      string    `json:"formatted_amount"`
	Status               int       `json:"status"`
	StatusText           string    `json:"status_text"`
	MaskedIBAN           string    `json:"masked_iban"`
	BankTransactionRefNo string    `json:"bank_transaction_ref_no,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

func (h *RouteHandler) HandleWithdrawalList(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	queryValues := retrieveUrlQueryValues(r)

	records, err := h.DB.Withdrawal().List(user.ID, queryValues.Limit, queryValues.Offset)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	items := make([]historyItem, 0, len(records))
	for _, record := range records {
		items = append(items, historyItem{
			ID:                   record.ID,
			Amount:               record.Amount,
			FormattedAmount:      funcs.FormatAmount(record.Amount),
			Status:               record.Status,
			StatusText:           withdrawal.Status(record.Status).String(),
			MaskedIBAN:           record.MaskedIBAN,
			BankTransactionRefNo: record.BankTransactionRefNo.String,
			CreatedAt:            record.CreatedAt,
		})
	}

	message := "Withdrawals retrieved"

	err = response.JSONOkResponse(w, items, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleWithdrawalShow(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	withdrawalID := r.PathValue("id")

	record, found, err := h.DB.Withdrawal().GetOneForUser(withdrawalID, user.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	message := "Withdrawal retrieved"

	err = response.JSONOkResponse(w, newWithdrawalResponse(record), message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// The quote endpoint backs the fee preview as the user types an amount.
// An unavailable fee is not an error; the client shows the fee as unknown
// and the flow continues.
func (h *RouteHandler) HandleCommissionQuote(w http.ResponseWriter, r *http.Request) {
	rawAmount := r.URL.Query().Get("amount")

	amount, err := money.ParseAmount(rawAmount)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, errors.New("enter a valid amount"))
		return
	}

	amountValue, _ := amount.Float64()
	fee, known := h.Commission.Quote(r.Context(), amountValue)

	data := map[string]any{
		"amount":           amountValue,
		"commission_known": known,
	}
	if known {
		data["commission"] = fee
	}

	message := "Commission quote"

	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleBalanceShow(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	snapshot, _, err := h.Orchestrator.Snapshot(user.ID)
	if err != nil {
		if errors.Is(err, withdrawal.ErrWalletNotFound) {
			h.ErrHandler.NotFound(w, r)
			return
		}
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := map[string]any{
		"total_balance":        snapshot.TotalBalance,
		"withdrawable_balance": snapshot.WithdrawableBalance,
		"blocked_balance":      snapshot.BlockedBalance,
	}
	if snapshot.RemainingWithdrawalLimit != nil {
		data["remaining_withdrawal_limit"] = *snapshot.RemainingWithdrawalLimit
	}

	message := "Balance retrieved"

	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
