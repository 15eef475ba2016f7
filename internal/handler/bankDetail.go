package handler

import (
	"net/http"
	"time"

	"github.com/cradoe/payrail/internal/context"
	"github.com/cradoe/payrail/internal/funcs"
	"github.com/cradoe/payrail/internal/repository"
	"github.com/cradoe/payrail/internal/request"
	"github.com/cradoe/payrail/internal/response"
	"github.com/cradoe/payrail/internal/validator"
	"github.com/cradoe/payrail/internal/withdrawal"
)

type bankDetailResponse struct {
	MaskedIBAN        string    `json:"masked_iban"`
	AccountHolderName string    `json:"account_holder_name"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// The saved destination prefills the withdrawal form; only the masked IBAN
// ever goes back to the client.
func (h *RouteHandler) HandleBankDetailShow(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	detail, found, err := h.DB.BankDetail().GetByUserId(user.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	updatedAt := detail.CreatedAt
	if detail.UpdatedAt.Valid {
		updatedAt = detail.UpdatedAt.Time
	}

	data := bankDetailResponse{
		MaskedIBAN:        funcs.MaskIBAN(detail.IBAN),
		AccountHolderName: detail.AccountHolderName,
		UpdatedAt:         updatedAt,
	}

	message := "Bank details retrieved"

	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleBankDetailUpsert(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	var input struct {
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

	input.Validator.Check(validator.NotBlank(iban), "IBAN is required")
	input.Validator.Check(validator.Matches(iban, validator.RgxIBAN), "Must be a valid TR IBAN")

	input.Validator.Check(validator.NotBlank(input.AccountHolderName), "Account holder name is required")
	input.Validator.Check(len(input.AccountHolderName) >= 3, "Account holder name is too short")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	err = h.DB.BankDetail().Upsert(&repository.BankDetail{
		UserID:            user.ID,
		IBAN:              iban,
		AccountHolderName: input.AccountHolderName,
	})
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := map[string]string{
		"masked_iban": funcs.MaskIBAN(iban),
	}

	message := "Bank details saved"

	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
