package withdrawal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/cradoe/payrail/internal/config"
	"github.com/cradoe/payrail/internal/funcs"
	"github.com/cradoe/payrail/internal/otp"
	"github.com/cradoe/payrail/internal/processor"
	"github.com/cradoe/payrail/internal/repository"
	"github.com/cradoe/payrail/internal/stream"
	"github.com/google/uuid"
)

var (
	ErrAnotherInFlight  = errors.New("another withdrawal is awaiting verification, complete or cancel it first")
	ErrWalletNotFound   = errors.New("wallet not found")
	ErrNotFound         = errors.New("withdrawal not found")
	ErrNotAwaitingOtp   = errors.New("this withdrawal is not awaiting verification")
	ErrVerifyInProgress = errors.New("this withdrawal is already being verified")
	ErrResendCooldown   = errors.New("a new code was sent recently, wait before requesting another")
)

// User-facing messages. The generic ones are the safe defaults used whenever
// the rail omits a reason or the failure is a transport problem.
const (
	msgMoneySent        = "Your withdrawal has been sent to your bank"
	msgPending          = "Your withdrawal is being processed"
	msgAwaitingOtp      = "We sent a verification code to your email address"
	msgInvalidCode      = "Invalid code, try again"
	msgGenericFailure   = "We could not process your withdrawal at this time"
	msgUnknownStatus    = "We could not determine the state of your withdrawal, please check your history before retrying"
	msgChallengeExpired = "The verification window has expired, please start a new withdrawal"
)

const submitLockTTL = 30 * time.Second

// PayoutGateway is the slice of the processor client the orchestrator uses.
type PayoutGateway interface {
	CreatePayout(ctx context.Context, payout *processor.PayoutRequest) (*processor.PayoutResult, error)
}

// ChallengeManager is satisfied by otp.Manager.
type ChallengeManager interface {
	Create(withdrawalID string) (string, error)
	Verify(withdrawalID, code string) otp.VerifyResult
	Resend(withdrawalID string) (code string, remaining int, ok bool, err error)
	Cooldown(withdrawalID string) int
	Alive(withdrawalID string) bool
	Destroy(withdrawalID string)
}

// SubmitLocker is the slice of the redis cache used for the per-user
// submit lock.
type SubmitLocker interface {
	SetIfNotExists(key string, value string, expiration time.Duration) (bool, error)
	Delete(key string) error
}

// EventProducer is satisfied by stream.KafkaStream.
type EventProducer interface {
	ProduceMessage(topic, message string) error
}

// Notifier delivers verification codes to the user out of band. Outcome
// emails are sent by the consumers of the lifecycle topics, not from here.
type Notifier interface {
	SendOtpCode(user *repository.User, withdrawal *repository.Withdrawal, code string)
}

type SubmitInput struct {
	Amount            string
	IBAN              string
	AccountHolderName string
}

// Outcome is the discriminated result every orchestrator operation resolves
// to. Handlers branch on Status only and never on error dynamic types.
type Outcome struct {
	Withdrawal      *repository.Withdrawal
	Status          Status
	Message         string
	CommissionKnown bool
	OtpCooldown     int
}

// Orchestrator owns the withdrawal state machine: submit, the optional OTP
// step-up, and the reconciliation of the rail's answer into a terminal state.
type Orchestrator struct {
	Withdrawals repository.WithdrawalRepository
	Wallets     repository.WalletRepository
	Gateway     PayoutGateway
	Challenges  ChallengeManager
	Commission  *CommissionResolver
	Locks       SubmitLocker
	Events      EventProducer
	Notifier    Notifier
	Settings    config.WithdrawalSettings
}

func NewOrchestrator(o *Orchestrator) *Orchestrator {
	return &Orchestrator{
		Withdrawals: o.Withdrawals,
		Wallets:     o.Wallets,
		Gateway:     o.Gateway,
		Challenges:  o.Challenges,
		Commission:  o.Commission,
		Locks:       o.Locks,
		Events:      o.Events,
		Notifier:    o.Notifier,
		Settings:    o.Settings,
	}
}

// Snapshot assembles the immutable balance view one validation pass runs
// against. It is fetched fresh for every submission attempt.
func (o *Orchestrator) Snapshot(userID string) (*BalanceSnapshot, *repository.Wallet, error) {
	wallet, found, err := o.Wallets.GetByUserId(userID)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, ErrWalletNotFound
	}

	snapshot := &BalanceSnapshot{
		TotalBalance:        wallet.Balance,
		BlockedBalance:      wallet.BlockedBalance,
		WithdrawableBalance: wallet.Balance - wallet.BlockedBalance,
	}

	if o.Settings.DailyLimit > 0 {
		midnight := startOfDay(time.Now(), o.Settings.Location)

		used, err := o.Withdrawals.SumSince(userID, midnight, int(StatusFailed))
		if err != nil {
			return nil, nil, err
		}

		remaining := o.Settings.DailyLimit - used
		snapshot.RemainingWithdrawalLimit = &remaining
	}

	return snapshot, wallet, nil
}

// startOfDay returns the most recent midnight in the given location, so the
// daily window rolls over at the user's midnight rather than UTC's.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}

	t = t.In(loc)

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Submit runs one submission attempt end to end: in-flight guard, validation,
// persistence, and either the OTP step-up or an immediate dispatch to the
// rail. Validation failures come back as *AmountError; everything else is a
// terminal Outcome or an infrastructure error.
func (o *Orchestrator) Submit(ctx context.Context, user *repository.User, input *SubmitInput) (*Outcome, error) {
	// The lock closes the race between two concurrent submits; the status
	// check below enforces the rule across requests over time.
	lockKey := "withdrawal:submit:" + user.ID
	locked, err := o.Locks.SetIfNotExists(lockKey, uuid.NewString(), submitLockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, ErrAnotherInFlight
	}
	defer func() {
		if err := o.Locks.Delete(lockKey); err != nil {
			log.Printf("Error releasing submit lock for user %s: %v", user.ID, err)
		}
	}()

	inFlight, err := o.Withdrawals.HasWithStatus(user.ID, InFlightStatuses()...)
	if err != nil {
		return nil, err
	}
	if inFlight {
		return nil, ErrAnotherInFlight
	}

	snapshot, wallet, err := o.Snapshot(user.ID)
	if err != nil {
		return nil, err
	}

	amount, vErr := ValidateAmount(input.Amount, snapshot, o.Settings)
	if vErr != nil {
		return nil, vErr
	}

	amountValue, _ := amount.Float64()
	iban := NormalizeIBAN(input.IBAN)
	commission, commissionKnown := o.commissionFor(ctx, amountValue)

	record := &repository.Withdrawal{
		UserID:            user.ID,
		Amount:            amountValue,
		Commission:        commission,
		IBAN:              iban,
		MaskedIBAN:        funcs.MaskIBAN(iban),
		AccountHolderName: input.AccountHolderName,
	}

	if o.otpRequired(amountValue) {
		record.Status = int(StatusAwaitingOtpVerification)
		record.Message = sql.NullString{String: msgAwaitingOtp, Valid: true}

		created, err := o.Withdrawals.Insert(record, nil)
		if err != nil {
			return nil, err
		}

		code, err := o.Challenges.Create(created.ID)
		if err != nil {
			return nil, err
		}

		o.Notifier.SendOtpCode(user, created, code)
		o.produceEvent(stream.WithdrawalInitiatedTopic, created)

		return &Outcome{
			Withdrawal:      created,
			Status:          StatusAwaitingOtpVerification,
			Message:         msgAwaitingOtp,
			CommissionKnown: commissionKnown,
			OtpCooldown:     o.Challenges.Cooldown(created.ID),
		}, nil
	}

	record.Status = int(StatusPending)
	record.Message = sql.NullString{String: msgPending, Valid: true}

	created, err := o.Withdrawals.Insert(record, nil)
	if err != nil {
		return nil, err
	}

	o.produceEvent(stream.WithdrawalInitiatedTopic, created)

	outcome := o.dispatch(ctx, wallet, created)
	outcome.CommissionKnown = commissionKnown

	return outcome, nil
}

// VerifyOtp resolves the step-up for a withdrawal that is awaiting
// verification. Code format is the caller's concern; a malformed code must be
// rejected locally before this call.
func (o *Orchestrator) VerifyOtp(ctx context.Context, user *repository.User, withdrawalID, code string) (*Outcome, error) {
	// Two concurrent verifies would both read the row while it is still
	// awaiting verification; the loser would then stamp a freshly recorded
	// outcome with a failure. The lock serializes them the same way the
	// submit lock serializes submissions.
	lockKey := "withdrawal:verify:" + withdrawalID
	locked, err := o.Locks.SetIfNotExists(lockKey, uuid.NewString(), submitLockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, ErrVerifyInProgress
	}
	defer func() {
		if err := o.Locks.Delete(lockKey); err != nil {
			log.Printf("Error releasing verify lock for withdrawal %s: %v", withdrawalID, err)
		}
	}()

	record, found, err := o.Withdrawals.GetOneForUser(withdrawalID, user.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	switch Status(record.Status) {
	case StatusAwaitingOtpVerification, StatusFailedOtp:
		// verification may proceed
	case StatusPending, StatusMoneySent, StatusFailed:
		return nil, ErrNotAwaitingOtp
	default:
		return nil, ErrNotAwaitingOtp
	}

	switch o.Challenges.Verify(withdrawalID, code) {
	case otp.VerifyNotFound:
		return o.fail(record, msgChallengeExpired, "verification window expired"), nil

	case otp.VerifyMismatch:
		update := outcomeUpdate(record)
		update.Status = int(StatusFailedOtp)
		update.Message = sql.NullString{String: msgInvalidCode, Valid: true}

		if err := o.Withdrawals.UpdateOutcome(record.ID, update); err != nil {
			return nil, err
		}
		record.Status = int(StatusFailedOtp)
		record.Message = update.Message

		// the withdrawal id is preserved and the challenge stays alive, so
		// the user retries in place instead of resubmitting
		return &Outcome{
			Withdrawal:  record,
			Status:      StatusFailedOtp,
			Message:     msgInvalidCode,
			OtpCooldown: o.Challenges.Cooldown(withdrawalID),
		}, nil

	case otp.VerifyOK:
		wallet, found, err := o.Wallets.GetByUserId(user.ID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrWalletNotFound
		}

		return o.dispatch(ctx, wallet, record), nil
	}

	return nil, ErrNotAwaitingOtp
}

// ResendOtp rotates the challenge code once the cooldown window has elapsed.
// It returns the seconds left until resend is allowed.
func (o *Orchestrator) ResendOtp(user *repository.User, withdrawalID string) (int, error) {
	record, found, err := o.Withdrawals.GetOneForUser(withdrawalID, user.ID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}

	if Status(record.Status).Terminal() {
		return 0, ErrNotAwaitingOtp
	}

	code, remaining, ok, err := o.Challenges.Resend(withdrawalID)
	if errors.Is(err, otp.ErrNoChallenge) {
		// the challenge is gone but the row is still in the step-up, so the
		// row would block every future submission; fail it the same way an
		// expired verify does
		o.fail(record, msgChallengeExpired, "verification window expired")
		return 0, ErrNotAwaitingOtp
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		return remaining, ErrResendCooldown
	}

	o.Notifier.SendOtpCode(user, record, code)

	return remaining, nil
}

// ExpireAbandoned fails withdrawals stuck in the OTP step-up whose challenge
// no longer exists. Challenges live in memory only, so an abandoned OTP screen
// or a process restart leaves rows that would otherwise block the user's next
// submission forever. Returns the number of rows expired.
func (o *Orchestrator) ExpireAbandoned(limit int) (int, error) {
	// a resend extends the challenge lifetime beyond the row's age, so the
	// cutoff is only a pre-filter; the challenge itself is the authority
	cutoff := time.Now().Add(-time.Duration(o.Settings.OtpChallengeTTLSeconds) * time.Second)

	records, err := o.Withdrawals.ListWithStatusBefore(cutoff, limit,
		int(StatusAwaitingOtpVerification), int(StatusFailedOtp))
	if err != nil {
		return 0, err
	}

	expired := 0

	for i := range records {
		record := &records[i]

		if o.Challenges.Alive(record.ID) {
			continue
		}

		o.fail(record, msgChallengeExpired, "verification window expired")
		expired++
	}

	return expired, nil
}

// dispatch sends the payout to the rail and reconciles the answer into a
// terminal state. Every reachable rail answer, including ones the rail should
// never produce, lands in a defined state.
func (o *Orchestrator) dispatch(ctx context.Context, wallet *repository.Wallet, record *repository.Withdrawal) *Outcome {
	total := record.Amount
	if record.Commission.Valid {
		total += record.Commission.Float64
	}

	debited, err := o.Wallets.Debit(wallet.ID, total)
	if err != nil {
		log.Printf("Error debiting wallet %s: %v", wallet.ID, err)
		return o.fail(record, msgGenericFailure, "wallet debit failed")
	}
	if !debited {
		return o.fail(record, msgGenericFailure, "insufficient balance at dispatch time")
	}

	result, err := o.Gateway.CreatePayout(ctx, &processor.PayoutRequest{
		Amount:            record.Amount,
		IBAN:              record.IBAN,
		AccountHolderName: record.AccountHolderName,
		Reference:         record.ID,
	})
	if err != nil {
		// transport failure, not a structured answer: refund, then surface a
		// generic terminal failure with no automatic retry
		log.Printf("Error dispatching payout for withdrawal %s: %v", record.ID, err)
		o.refund(wallet.ID, total)
		return o.fail(record, msgGenericFailure, "payout rail unreachable")
	}

	update := outcomeUpdate(record)
	update.PaymentReferenceID = sql.NullString{String: result.PayoutID, Valid: result.PayoutID != ""}
	update.ReceiverName = sql.NullString{String: result.ReceiverName, Valid: result.ReceiverName != ""}
	update.YandexTransactionID = sql.NullString{String: result.YandexTransactionID, Valid: result.YandexTransactionID != ""}
	update.BankTransactionRefNo = sql.NullString{String: result.BankTransactionRefNo, Valid: result.BankTransactionRefNo != ""}
	update.BankPaymentNo = sql.NullString{String: result.BankPaymentNo, Valid: result.BankPaymentNo != ""}

	// the rail's answer is mapped into the closed status set; branching is an
	// exhaustive switch so a newly introduced status can never be left
	// unhandled silently
	var message string
	var topic string

	switch status := MapPayoutStatus(result.Status); status {
	case StatusMoneySent:
		update.Status = int(StatusMoneySent)
		message = msgMoneySent
		topic = stream.WithdrawalCompletedTopic

	case StatusPending:
		update.Status = int(StatusPending)
		message = msgPending
		topic = ""

	case StatusFailed:
		o.refund(wallet.ID, total)

		reason := result.FailureReason
		if reason == "" {
			reason = msgGenericFailure
		}

		update.Status = int(StatusFailed)
		update.FailureReason = sql.NullString{String: reason, Valid: true}
		message = reason
		topic = stream.WithdrawalFailedTopic

	case StatusAwaitingOtpVerification, StatusFailedOtp:
		// unreachable: MapPayoutStatus never yields a non-terminal status;
		// treat as unknown to keep the transition total
		o.refund(wallet.ID, total)
		update.Status = int(StatusFailed)
		update.FailureReason = sql.NullString{String: "unknown status", Valid: true}
		message = msgUnknownStatus
		topic = stream.WithdrawalFailedTopic

	default:
		o.refund(wallet.ID, total)
		update.Status = int(StatusFailed)
		update.FailureReason = sql.NullString{String: "unknown status", Valid: true}
		message = msgUnknownStatus
		topic = stream.WithdrawalFailedTopic
	}

	update.Message = sql.NullString{String: message, Valid: true}

	if err := o.Withdrawals.UpdateOutcome(record.ID, update); err != nil {
		log.Printf("Error recording outcome for withdrawal %s: %v", record.ID, err)
	}

	applyUpdate(record, update)
	o.Challenges.Destroy(record.ID)

	if topic != "" {
		o.produceEvent(topic, record)
	}

	return &Outcome{
		Withdrawal: record,
		Status:     Status(update.Status),
		Message:    message,
	}
}

// MapPayoutStatus converts the rail's status string into the closed status
// set. Anything unrecognized maps to Failed so no answer is ever ambiguous.
func MapPayoutStatus(payoutStatus string) Status {
	switch payoutStatus {
	case processor.PayoutStatusSent:
		return StatusMoneySent
	case processor.PayoutStatusAccepted, processor.PayoutStatusProcessing:
		return StatusPending
	case processor.PayoutStatusFailed:
		return StatusFailed
	default:
		return StatusFailed
	}
}

func (o *Orchestrator) fail(record *repository.Withdrawal, message, reason string) *Outcome {
	update := outcomeUpdate(record)
	update.Status = int(StatusFailed)
	update.Message = sql.NullString{String: message, Valid: true}
	update.FailureReason = sql.NullString{String: reason, Valid: true}

	if err := o.Withdrawals.UpdateOutcome(record.ID, update); err != nil {
		log.Printf("Error recording failure for withdrawal %s: %v", record.ID, err)
	}

	applyUpdate(record, update)
	o.Challenges.Destroy(record.ID)
	o.produceEvent(stream.WithdrawalFailedTopic, record)

	return &Outcome{
		Withdrawal: record,
		Status:     StatusFailed,
		Message:    message,
	}
}

func (o *Orchestrator) refund(walletID string, amount float64) {
	if _, err := o.Wallets.Credit(walletID, amount); err != nil {
		log.Printf("Error refunding wallet %s after failed payout: %v", walletID, err)
	}
}

func (o *Orchestrator) otpRequired(amount float64) bool {
	return amount >= o.Settings.OtpThreshold
}

func (o *Orchestrator) commissionFor(ctx context.Context, amount float64) (sql.NullFloat64, bool) {
	if latest, ok := o.Commission.Latest(); ok && latest.Amount == amount {
		return sql.NullFloat64{Float64: latest.Commission, Valid: true}, true
	}

	fee, known := o.Commission.Quote(ctx, amount)
	if !known {
		return sql.NullFloat64{}, false
	}

	return sql.NullFloat64{Float64: fee, Valid: true}, true
}

func (o *Orchestrator) produceEvent(topic string, record *repository.Withdrawal) {
	payload, err := json.Marshal(stream.WithdrawalEvent{
		ID:         record.ID,
		UserID:     record.UserID,
		Amount:     record.Amount,
		Status:     record.Status,
		MaskedIBAN: record.MaskedIBAN,
	})
	if err != nil {
		log.Printf("Error encoding withdrawal event: %v", err)
		return
	}

	if err := o.Events.ProduceMessage(topic, string(payload)); err != nil {
		log.Printf("Error producing %s event: %v", topic, err)
	}
}

// outcomeUpdate seeds an update with the row's current values so an update
// never silently clears columns written earlier.
func outcomeUpdate(record *repository.Withdrawal) *repository.WithdrawalUpdate {
	return &repository.WithdrawalUpdate{
		Status:               record.Status,
		Commission:           record.Commission,
		Message:              record.Message,
		FailureReason:        record.FailureReason,
		ReceiverName:         record.ReceiverName,
		PaymentReferenceID:   record.PaymentReferenceID,
		YandexTransactionID:  record.YandexTransactionID,
		BankTransactionRefNo: record.BankTransactionRefNo,
		BankPaymentNo:        record.BankPaymentNo,
	}
}

func applyUpdate(record *repository.Withdrawal, update *repository.WithdrawalUpdate) {
	record.Status = update.Status
	record.Commission = update.Commission
	record.Message = update.Message
	record.FailureReason = update.FailureReason
	record.ReceiverName = update.ReceiverName
	record.PaymentReferenceID = update.PaymentReferenceID
	record.YandexTransactionID = update.YandexTransactionID
	record.BankTransactionRefNo = update.BankTransactionRefNo
	record.BankPaymentNo = update.BankPaymentNo
}
