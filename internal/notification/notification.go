package notification

import (
	"github.com/cradoe/payrail/internal/helper"
	"github.com/cradoe/payrail/internal/repository"
	"github.com/cradoe/payrail/internal/smtp"
)

// Service delivers withdrawal lifecycle emails. Sends run as background
// tasks so a slow mail server never blocks a request.
type Service struct {
	mailer        smtp.MailerInterface
	helper        *helper.HelperRepository
	otpTTLMinutes int
}

func New(mailer smtp.MailerInterface, helper *helper.HelperRepository, otpTTLMinutes int) *Service {
	return &Service{
		mailer:        mailer,
		helper:        helper,
		otpTTLMinutes: otpTTLMinutes,
	}
}

func (s *Service) SendOtpCode(user *repository.User, withdrawal *repository.Withdrawal, code string) {
	s.helper.BackgroundTask(nil, func() error {
		data := s.helper.NewEmailData()
		data["Name"] = user.FirstName
		data["Amount"] = withdrawal.Amount
		data["MaskedIBAN"] = withdrawal.MaskedIBAN
		data["Code"] = code
		data["ExpiresInMinutes"] = s.otpTTLMinutes

		return s.mailer.Send(user.Email, data, "otp-code.tmpl")
	})
}

func (s *Service) SendReceipt(user *repository.User, withdrawal *repository.Withdrawal) {
	s.helper.BackgroundTask(nil, func() error {
		data := s.helper.NewEmailData()
		data["Name"] = user.FirstName
		data["Amount"] = withdrawal.Amount
		data["MaskedIBAN"] = withdrawal.MaskedIBAN
		data["PaymentReferenceId"] = withdrawal.PaymentReferenceID.String
		if withdrawal.Commission.Valid {
			data["Commission"] = withdrawal.Commission.Float64
		}

		return s.mailer.Send(user.Email, data, "withdrawal-receipt.tmpl")
	})
}

func (s *Service) SendFailureAlert(user *repository.User, withdrawal *repository.Withdrawal, reason string) {
	s.helper.BackgroundTask(nil, func() error {
		data := s.helper.NewEmailData()
		data["Name"] = user.FirstName
		data["Amount"] = withdrawal.Amount
		data["MaskedIBAN"] = withdrawal.MaskedIBAN
		data["Reason"] = reason

		return s.mailer.Send(user.Email, data, "withdrawal-failed.tmpl")
	})
}
