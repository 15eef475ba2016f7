package withdrawal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cradoe/payrail/internal/config"
	"github.com/cradoe/payrail/internal/otp"
	"github.com/cradoe/payrail/internal/processor"
	"github.com/cradoe/payrail/internal/repository"
	"github.com/cradoe/payrail/internal/stream"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWithdrawalRepo struct {
	inFlight bool
	sum      float64
	records  map[string]*repository.Withdrawal
	inserted *repository.Withdrawal
	updates  map[string]*repository.WithdrawalUpdate
}

func newStubWithdrawalRepo() *stubWithdrawalRepo {
	return &stubWithdrawalRepo{
		records: make(map[string]*repository.Withdrawal),
		updates: make(map[string]*repository.WithdrawalUpdate),
	}
}

func (s *stubWithdrawalRepo) Insert(withdrawal *repository.Withdrawal, _ *sqlx.Tx) (*repository.Withdrawal, error) {
	created := *withdrawal
	created.ID = "wd-1"
	created.CreatedAt = time.Now()
	s.inserted = &created
	s.records[created.ID] = &created
	return &created, nil
}

func (s *stubWithdrawalRepo) GetOne(id string) (*repository.Withdrawal, bool, error) {
	record, found := s.records[id]
	return record, found, nil
}

func (s *stubWithdrawalRepo) GetOneForUser(id, userID string) (*repository.Withdrawal, bool, error) {
	record, found := s.records[id]
	if !found || record.UserID != userID {
		return nil, false, nil
	}
	return record, true, nil
}

func (s *stubWithdrawalRepo) List(string, int, int) ([]repository.Withdrawal, error) {
	return nil, nil
}

func (s *stubWithdrawalRepo) ListByStatus(int, int) ([]repository.Withdrawal, error) {
	return nil, nil
}

func (s *stubWithdrawalRepo) ListWithStatusBefore(cutoff time.Time, _ int, statuses ...int) ([]repository.Withdrawal, error) {
	matches := []repository.Withdrawal{}
	for _, record := range s.records {
		for _, status := range statuses {
			if record.Status == status && record.CreatedAt.Before(cutoff) {
				matches = append(matches, *record)
			}
		}
	}
	return matches, nil
}

func (s *stubWithdrawalRepo) UpdateOutcome(id string, update *repository.WithdrawalUpdate) error {
	s.updates[id] = update
	if record, found := s.records[id]; found {
		record.Status = update.Status
	}
	return nil
}

func (s *stubWithdrawalRepo) HasWithStatus(string, ...int) (bool, error) {
	return s.inFlight, nil
}

func (s *stubWithdrawalRepo) SumSince(string, time.Time, ...int) (float64, error) {
	return s.sum, nil
}

type stubWalletRepo struct {
	wallet   *repository.Wallet
	debitOK  bool
	debited  []float64
	credited []float64
}

func (s *stubWalletRepo) Insert(wallet *repository.Wallet, _ *sqlx.Tx) (string, error) {
	return wallet.ID, nil
}

func (s *stubWalletRepo) GetByUserId(string) (*repository.Wallet, bool, error) {
	if s.wallet == nil {
		return nil, false, nil
	}
	return s.wallet, true, nil
}

func (s *stubWalletRepo) Debit(_ string, amount float64) (bool, error) {
	if !s.debitOK {
		return false, nil
	}
	s.debited = append(s.debited, amount)
	return true, nil
}

func (s *stubWalletRepo) Credit(_ string, amount float64) (bool, error) {
	s.credited = append(s.credited, amount)
	return true, nil
}

type stubGateway struct {
	result *processor.PayoutResult
	err    error
	calls  []*processor.PayoutRequest
}

func (s *stubGateway) CreatePayout(_ context.Context, payout *processor.PayoutRequest) (*processor.PayoutResult, error) {
	s.calls = append(s.calls, payout)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubChallenges struct {
	verifyResult otp.VerifyResult
	resendOK     bool
	resendErr    error
	remaining    int
	alive        map[string]bool
	created      []string
	destroyed    []string
}

func (s *stubChallenges) Create(withdrawalID string) (string, error) {
	s.created = append(s.created, withdrawalID)
	return "123456", nil
}

func (s *stubChallenges) Verify(string, string) otp.VerifyResult {
	return s.verifyResult
}

func (s *stubChallenges) Resend(string) (string, int, bool, error) {
	if s.resendErr != nil {
		return "", 0, false, s.resendErr
	}
	if !s.resendOK {
		return "", s.remaining, false, nil
	}
	return "654321", s.remaining, true, nil
}

func (s *stubChallenges) Cooldown(string) int { return s.remaining }

func (s *stubChallenges) Alive(withdrawalID string) bool { return s.alive[withdrawalID] }

func (s *stubChallenges) Destroy(withdrawalID string) {
	s.destroyed = append(s.destroyed, withdrawalID)
}

type stubLocks struct {
	acquired bool
	deleted  []string
}

func (s *stubLocks) SetIfNotExists(string, string, time.Duration) (bool, error) {
	return s.acquired, nil
}

func (s *stubLocks) Delete(key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

type stubEvents struct {
	topics []string
}

func (s *stubEvents) ProduceMessage(topic, _ string) error {
	s.topics = append(s.topics, topic)
	return nil
}

type stubNotifier struct {
	codes []string
}

func (s *stubNotifier) SendOtpCode(_ *repository.User, _ *repository.Withdrawal, code string) {
	s.codes = append(s.codes, code)
}

type fixedQuoter struct {
	fee float64
	err error
}

func (q *fixedQuoter) CommissionQuote(context.Context, float64) (float64, error) {
	return q.fee, q.err
}

type noopCache struct{}

func (noopCache) Get(string) (string, bool, error)        { return "", false, nil }
func (noopCache) Set(string, string, time.Duration) error { return nil }

type orchestratorFixture struct {
	orchestrator *Orchestrator
	withdrawals  *stubWithdrawalRepo
	wallets      *stubWalletRepo
	gateway      *stubGateway
	challenges   *stubChallenges
	locks        *stubLocks
	events       *stubEvents
	notifier     *stubNotifier
}

func newOrchestratorFixture() *orchestratorFixture {
	withdrawals := newStubWithdrawalRepo()
	wallets := &stubWalletRepo{
		wallet:  &repository.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 5000},
		debitOK: true,
	}
	gateway := &stubGateway{
		result: &processor.PayoutResult{PayoutID: "pay-1", Status: processor.PayoutStatusSent, ReceiverName: "J*** D***"},
	}
	challenges := &stubChallenges{}
	locks := &stubLocks{acquired: true}
	events := &stubEvents{}
	notifier := &stubNotifier{}

	orchestrator := NewOrchestrator(&Orchestrator{
		Withdrawals: withdrawals,
		Wallets:     wallets,
		Gateway:     gateway,
		Challenges:  challenges,
		Commission:  NewCommissionResolver(&fixedQuoter{fee: 2.50}, noopCache{}),
		Locks:       locks,
		Events:      events,
		Notifier:    notifier,
		Settings: config.WithdrawalSettings{
			MinimumAmount: 50,
			MaximumAmount: 5000,
			OtpThreshold:  1000,
		},
	})

	return &orchestratorFixture{
		orchestrator: orchestrator,
		withdrawals:  withdrawals,
		wallets:      wallets,
		gateway:      gateway,
		challenges:   challenges,
		locks:        locks,
		events:       events,
		notifier:     notifier,
	}
}

var testUser = &repository.User{ID: "user-1", FirstName: "Ada", Email: "ada@example.com"}

func TestSubmitSendsSmallWithdrawalImmediately(t *testing.T) {
	f := newOrchestratorFixture()

	outcome, err := f.orchestrator.Submit(context.Background(), testUser, &SubmitInput{
		Amount:            "100,50",
		IBAN:              "tr12 0001 0000 0000 0000 0000 01",
		AccountHolderName: "Ada Lovelace",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusMoneySent, outcome.Status)
	assert.Equal(t, msgMoneySent, outcome.Message)
	assert.True(t, outcome.CommissionKnown)

	require.NotNil(t, f.withdrawals.inserted)
	assert.Equal(t, 100.50, f.withdrawals.inserted.Amount)
	assert.Equal(t, "TR120001000000000000000001", f.withdrawals.inserted.IBAN)
	assert.Equal(t, "TR12******************0001", f.withdrawals.inserted.MaskedIBAN)

	// amount plus commission leaves the wallet
	require.Len(t, f.wallets.debited, 1)
	assert.Equal(t, 103.00, f.wallets.debited[0])

	require.Len(t, f.gateway.calls, 1)
	assert.Equal(t, "wd-1", f.gateway.calls[0].Reference)

	assert.Contains(t, f.events.topics, stream.WithdrawalInitiatedTopic)
	assert.Contains(t, f.events.topics, stream.WithdrawalCompletedTopic)
	assert.Empty(t, f.challenges.created)
	assert.Len(t, f.locks.deleted, 1)
}

func TestSubmitRequiresOtpAboveThreshold(t *testing.T) {
	f := newOrchestratorFixture()

	outcome, err := f.orchestrator.Submit(context.Background(), testUser, &SubmitInput{
		Amount:            "1500",
		IBAN:              "TR120001000000000000000001",
		AccountHolderName: "Ada Lovelace",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingOtpVerification, outcome.Status)
	assert.Equal(t, []string{"wd-1"}, f.challenges.created)
	assert.Equal(t, []string{"123456"}, f.notifier.codes)

	// nothing leaves the wallet and nothing reaches the rail before the
	// code is verified
	assert.Empty(t, f.wallets.debited)
	assert.Empty(t, f.gateway.calls)
	assert.Equal(t, []string{stream.WithdrawalInitiatedTopic}, f.events.topics)
}

func TestSubmitRejectsConcurrentAttempt(t *testing.T) {
	f := newOrchestratorFixture()
	f.locks.acquired = false

	_, err := f.orchestrator.Submit(context.Background(), testUser, &SubmitInput{Amount: "100"})

	require.ErrorIs(t, err, ErrAnotherInFlight)
	assert.Nil(t, f.withdrawals.inserted)
}

func TestSubmitRejectsSecondInFlightWithdrawal(t *testing.T) {
	f := newOrchestratorFixture()
	f.withdrawals.inFlight = true

	_, err := f.orchestrator.Submit(context.Background(), testUser, &SubmitInput{Amount: "100"})

	require.ErrorIs(t, err, ErrAnotherInFlight)
	assert.Len(t, f.locks.deleted, 1)
}

func TestSubmitReturnsAmountError(t *testing.T) {
	f := newOrchestratorFixture()

	_, err := f.orchestrator.Submit(context.Background(), testUser, &SubmitInput{Amount: "10"})

	var amountErr *AmountError
	require.ErrorAs(t, err, &amountErr)
	assert.Equal(t, AmountBelowMinimum, amountErr.Reason)
	assert.Nil(t, f.withdrawals.inserted)
}

func TestSubmitFailsTerminallyWhenRailUnreachable(t *testing.T) {
	f := newOrchestratorFixture()
	f.gateway.err = errors.New("connection refused")

	outcome, err := f.orchestrator.Submit(context.Background(), testUser, &SubmitInput{
		Amount:            "100",
		IBAN:              "TR120001000000000000000001",
		AccountHolderName: "Ada Lovelace",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, msgGenericFailure, outcome.Message)

	// the debit is reversed and exactly one terminal failure is recorded,
	// with no retry against the rail
	assert.Equal(t, f.wallets.debited, f.wallets.credited)
	assert.Len(t, f.gateway.calls, 1)
	assert.Contains(t, f.events.topics, stream.WithdrawalFailedTopic)
}

func TestSubmitMapsUnknownRailStatusToFailed(t *testing.T) {
	f := newOrchestratorFixture()
	f.gateway.result = &processor.PayoutResult{PayoutID: "pay-1", Status: "rebooted"}

	outcome, err := f.orchestrator.Submit(context.Background(), testUser, &SubmitInput{
		Amount:            "100",
		IBAN:              "TR120001000000000000000001",
		AccountHolderName: "Ada Lovelace",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, msgUnknownStatus, outcome.Message)

	update := f.withdrawals.updates["wd-1"]
	require.NotNil(t, update)
	assert.Equal(t, "unknown status", update.FailureReason.String)
	assert.Equal(t, f.wallets.debited, f.wallets.credited)
}

func TestSubmitLeavesProcessingWithdrawalPending(t *testing.T) {
	f := newOrchestratorFixture()
	f.gateway.result = &processor.PayoutResult{PayoutID: "pay-1", Status: processor.PayoutStatusProcessing}

	outcome, err := f.orchestrator.Submit(context.Background(), testUser, &SubmitInput{
		Amount:            "100",
		IBAN:              "TR120001000000000000000001",
		AccountHolderName: "Ada Lovelace",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusPending, outcome.Status)

	// money stays debited while the settlement worker tracks the payout
	assert.Empty(t, f.wallets.credited)
	assert.NotContains(t, f.events.topics, stream.WithdrawalFailedTopic)
	assert.NotContains(t, f.events.topics, stream.WithdrawalCompletedTopic)
}

func awaitingWithdrawal(f *orchestratorFixture) *repository.Withdrawal {
	record := &repository.Withdrawal{
		ID:                "wd-9",
		UserID:            "user-1",
		Amount:            1500,
		IBAN:              "TR120001000000000000000001",
		MaskedIBAN:        "TR12******************0001",
		AccountHolderName: "Ada Lovelace",
		Status:            int(StatusAwaitingOtpVerification),
	}
	f.withdrawals.records[record.ID] = record
	return record
}

func TestVerifyOtpWrongCodeKeepsWithdrawalAlive(t *testing.T) {
	f := newOrchestratorFixture()
	record := awaitingWithdrawal(f)
	f.challenges.verifyResult = otp.VerifyMismatch
	f.challenges.remaining = 42

	outcome, err := f.orchestrator.VerifyOtp(context.Background(), testUser, record.ID, "000000")

	require.NoError(t, err)
	assert.Equal(t, StatusFailedOtp, outcome.Status)
	assert.Equal(t, msgInvalidCode, outcome.Message)
	assert.Equal(t, record.ID, outcome.Withdrawal.ID)
	assert.Equal(t, 42, outcome.OtpCooldown)

	// the challenge survives a mismatch so the user can retry in place
	assert.Empty(t, f.challenges.destroyed)
	assert.Empty(t, f.gateway.calls)
}

func TestVerifyOtpExpiredChallengeFailsWithdrawal(t *testing.T) {
	f := newOrchestratorFixture()
	record := awaitingWithdrawal(f)
	f.challenges.verifyResult = otp.VerifyNotFound

	outcome, err := f.orchestrator.VerifyOtp(context.Background(), testUser, record.ID, "123456")

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, msgChallengeExpired, outcome.Message)
	assert.Contains(t, f.events.topics, stream.WithdrawalFailedTopic)
}

func TestVerifyOtpCorrectCodeDispatchesPayout(t *testing.T) {
	f := newOrchestratorFixture()
	record := awaitingWithdrawal(f)
	f.challenges.verifyResult = otp.VerifyOK

	outcome, err := f.orchestrator.VerifyOtp(context.Background(), testUser, record.ID, "123456")

	require.NoError(t, err)
	assert.Equal(t, StatusMoneySent, outcome.Status)

	require.Len(t, f.gateway.calls, 1)
	assert.Equal(t, record.ID, f.gateway.calls[0].Reference)
	require.Len(t, f.wallets.debited, 1)
	assert.Equal(t, 1500.00, f.wallets.debited[0])
}

func TestVerifyOtpRejectsResolvedWithdrawal(t *testing.T) {
	f := newOrchestratorFixture()
	record := awaitingWithdrawal(f)
	record.Status = int(StatusMoneySent)

	_, err := f.orchestrator.VerifyOtp(context.Background(), testUser, record.ID, "123456")

	require.ErrorIs(t, err, ErrNotAwaitingOtp)
}

func TestVerifyOtpRejectsConcurrentVerify(t *testing.T) {
	f := newOrchestratorFixture()
	record := awaitingWithdrawal(f)
	f.locks.acquired = false

	_, err := f.orchestrator.VerifyOtp(context.Background(), testUser, record.ID, "123456")

	require.ErrorIs(t, err, ErrVerifyInProgress)

	// the losing request must not touch the row at all
	assert.Equal(t, int(StatusAwaitingOtpVerification), record.Status)
	assert.Empty(t, f.withdrawals.updates)
	assert.Empty(t, f.events.topics)
	assert.Empty(t, f.challenges.destroyed)
}

func TestVerifyOtpDuplicateCannotOverwriteSentWithdrawal(t *testing.T) {
	f := newOrchestratorFixture()
	record := awaitingWithdrawal(f)
	f.challenges.verifyResult = otp.VerifyOK

	outcome, err := f.orchestrator.VerifyOtp(context.Background(), testUser, record.ID, "123456")
	require.NoError(t, err)
	require.Equal(t, StatusMoneySent, outcome.Status)

	// a duplicate of the same request lands after the winner has resolved
	// the row; the destroyed challenge must not fail money the rail sent
	f.challenges.verifyResult = otp.VerifyNotFound

	_, err = f.orchestrator.VerifyOtp(context.Background(), testUser, record.ID, "123456")
	require.ErrorIs(t, err, ErrNotAwaitingOtp)

	assert.Equal(t, int(StatusMoneySent), f.withdrawals.records[record.ID].Status)
	assert.NotContains(t, f.events.topics, stream.WithdrawalFailedTopic)
}

func TestVerifyOtpRejectsUnknownWithdrawal(t *testing.T) {
	f := newOrchestratorFixture()

	_, err := f.orchestrator.VerifyOtp(context.Background(), testUser, "missing", "123456")

	require.ErrorIs(t, err, ErrNotFound)
}

func TestResendOtpBlockedDuringCooldown(t *testing.T) {
	f := newOrchestratorFixture()
	record := awaitingWithdrawal(f)
	f.challenges.resendOK = false
	f.challenges.remaining = 37

	remaining, err := f.orchestrator.ResendOtp(testUser, record.ID)

	require.ErrorIs(t, err, ErrResendCooldown)
	assert.Equal(t, 37, remaining)
	assert.Empty(t, f.notifier.codes)
}

func TestResendOtpDeliversFreshCode(t *testing.T) {
	f := newOrchestratorFixture()
	record := awaitingWithdrawal(f)
	f.challenges.resendOK = true

	_, err := f.orchestrator.ResendOtp(testUser, record.ID)

	require.NoError(t, err)
	assert.Equal(t, []string{"654321"}, f.notifier.codes)
}

func TestResendOtpDeadChallengeFailsWithdrawal(t *testing.T) {
	f := newOrchestratorFixture()
	record := awaitingWithdrawal(f)
	f.challenges.resendErr = otp.ErrNoChallenge

	_, err := f.orchestrator.ResendOtp(testUser, record.ID)

	require.ErrorIs(t, err, ErrNotAwaitingOtp)
	assert.Empty(t, f.notifier.codes)

	// the row is released instead of blocking the next submission forever
	assert.Equal(t, int(StatusFailed), f.withdrawals.records[record.ID].Status)
	assert.Contains(t, f.events.topics, stream.WithdrawalFailedTopic)
}

func TestExpireAbandonedFailsOrphanedRows(t *testing.T) {
	f := newOrchestratorFixture()
	orphan := awaitingWithdrawal(f)

	live := &repository.Withdrawal{
		ID:     "wd-10",
		UserID: "user-1",
		Amount: 2000,
		Status: int(StatusAwaitingOtpVerification),
	}
	f.withdrawals.records[live.ID] = live
	f.challenges.alive = map[string]bool{live.ID: true}

	expired, err := f.orchestrator.ExpireAbandoned(50)

	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	// only the row whose challenge is gone is failed
	assert.Equal(t, int(StatusFailed), f.withdrawals.records[orphan.ID].Status)
	assert.Equal(t, int(StatusAwaitingOtpVerification), f.withdrawals.records[live.ID].Status)
	assert.Equal(t, []string{stream.WithdrawalFailedTopic}, f.events.topics)

	update := f.withdrawals.updates[orphan.ID]
	require.NotNil(t, update)
	assert.Equal(t, msgChallengeExpired, update.Message.String)
}

func TestStartOfDayFollowsLocation(t *testing.T) {
	trt := time.FixedZone("TRT", 3*60*60)

	// 22:30 UTC is already past midnight in UTC+3
	at := time.Date(2026, time.January, 15, 22, 30, 0, 0, time.UTC)

	got := startOfDay(at, trt)
	assert.Equal(t, time.Date(2026, time.January, 16, 0, 0, 0, 0, trt), got)
	assert.True(t, got.After(at.Truncate(24*time.Hour)))

	assert.Equal(t, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC), startOfDay(at, nil))
}

func TestMapPayoutStatusIsTotal(t *testing.T) {
	tests := []struct {
		payoutStatus string
		want         Status
	}{
		{processor.PayoutStatusSent, StatusMoneySent},
		{processor.PayoutStatusAccepted, StatusPending},
		{processor.PayoutStatusProcessing, StatusPending},
		{processor.PayoutStatusFailed, StatusFailed},
		{"", StatusFailed},
		{"shrugged", StatusFailed},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MapPayoutStatus(tt.payoutStatus), "status %q", tt.payoutStatus)
	}
}
