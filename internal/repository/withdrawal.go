package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

type Withdrawal struct {
	ID                   string          `db:"id"`
	UserID               string          `db:"user_id"`
	Amount               float64         `db:"amount"`
	Commission           sql.NullFloat64 `db:"commission"`
	IBAN                 string          `db:"iban"`
	MaskedIBAN           string          `db:"masked_iban"`
	AccountHolderName    string          `db:"account_holder_name"`
	ReceiverName         sql.NullString  `db:"receiver_name"`
	Status               int             `db:"status"`
	Message              sql.NullString  `db:"message"`
	FailureReason        sql.NullString  `db:"failure_reason"`
	PaymentReferenceID   sql.NullString  `db:"payment_reference_id"`
	YandexTransactionID  sql.NullString  `db:"yandex_transaction_id"`
	BankTransactionRefNo sql.NullString  `db:"bank_transaction_ref_no"`
	BankPaymentNo        sql.NullString  `db:"bank_payment_no"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            sql.NullTime    `db:"updated_at"`
}

// WithdrawalUpdate carries the mutable outcome columns of a withdrawal row.
// Null fields clear the corresponding column, so callers should copy over
// values they want preserved.
type WithdrawalUpdate struct {
	Status               int
	Commission           sql.NullFloat64
	Message              sql.NullString
	FailureReason        sql.NullString
	ReceiverName         sql.NullString
	PaymentReferenceID   sql.NullString
	YandexTransactionID  sql.NullString
	BankTransactionRefNo sql.NullString
	BankPaymentNo        sql.NullString
}

type WithdrawalRepository interface {
	Insert(withdrawal *Withdrawal, tx *sqlx.Tx) (*Withdrawal, error)
	GetOne(id string) (*Withdrawal, bool, error)
	GetOneForUser(id, userID string) (*Withdrawal, bool, error)
	List(userID string, limit, offset int) ([]Withdrawal, error)
	ListByStatus(status int, limit int) ([]Withdrawal, error)
	ListWithStatusBefore(cutoff time.Time, limit int, statuses ...int) ([]Withdrawal, error)
	UpdateOutcome(id string, update *WithdrawalUpdate) error
	HasWithStatus(userID string, statuses ...int) (bool, error)
	SumSince(userID string, since time.Time, excludedStatuses ...int) (float64, error)
}

type WithdrawalRepositoryImpl struct {
	db *sqlx.DB
}

func NewWithdrawalRepository(db *sqlx.DB) WithdrawalRepository {
	return &WithdrawalRepositoryImpl{db: db}
}

func (repo *WithdrawalRepositoryImpl) Insert(withdrawal *Withdrawal, tx *sqlx.Tx) (*Withdrawal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var created Withdrawal

	query := `
		INSERT INTO withdrawals (user_id, amount, commission, iban, masked_iban, account_holder_name, status, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *`

	args := []any{
		withdrawal.UserID,
		withdrawal.Amount,
		withdrawal.Commission,
		withdrawal.IBAN,
		withdrawal.MaskedIBAN,
		withdrawal.AccountHolderName,
		withdrawal.Status,
		withdrawal.Message,
	}

	if tx != nil {
		err := tx.GetContext(ctx, &created, query, args...)
		if err != nil {
			return nil, err
		}
	} else {
		err := repo.db.GetContext(ctx, &created, query, args...)
		if err != nil {
			return nil, err
		}
	}

	return &created, nil
}

func (repo *WithdrawalRepositoryImpl) GetOne(id string) (*Withdrawal, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var withdrawal Withdrawal

	query := `SELECT * FROM withdrawals WHERE id=$1`

	err := repo.db.GetContext(ctx, &withdrawal, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &withdrawal, true, nil
}

func (repo *WithdrawalRepositoryImpl) GetOneForUser(id, userID string) (*Withdrawal, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var withdrawal Withdrawal

	query := `SELECT * FROM withdrawals WHERE id=$1 AND user_id=$2`

	err := repo.db.GetContext(ctx, &withdrawal, query, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &withdrawal, true, nil
}

func (repo *WithdrawalRepositoryImpl) List(userID string, limit, offset int) ([]Withdrawal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	withdrawals := []Withdrawal{}

	query := `
		SELECT * FROM withdrawals
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	err := repo.db.SelectContext(ctx, &withdrawals, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	return withdrawals, nil
}

func (repo *WithdrawalRepositoryImpl) ListByStatus(status int, limit int) ([]Withdrawal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	withdrawals := []Withdrawal{}

	query := `
		SELECT * FROM withdrawals
		WHERE status=$1
		ORDER BY created_at ASC
		LIMIT $2`

	err := repo.db.SelectContext(ctx, &withdrawals, query, status, limit)
	if err != nil {
		return nil, err
	}

	return withdrawals, nil
}

// ListWithStatusBefore returns withdrawals in one of the given statuses that
// were created before the cutoff, oldest first. It backs the sweep that
// expires abandoned verification flows.
func (repo *WithdrawalRepositoryImpl) ListWithStatusBefore(cutoff time.Time, limit int, statuses ...int) ([]Withdrawal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query, args, err := sqlx.In(
		`SELECT * FROM withdrawals WHERE status IN (?) AND created_at < ? ORDER BY created_at ASC LIMIT ?`,
		statuses, cutoff, limit,
	)
	if err != nil {
		return nil, err
	}

	withdrawals := []Withdrawal{}

	err = repo.db.SelectContext(ctx, &withdrawals, repo.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}

	return withdrawals, nil
}

func (repo *WithdrawalRepositoryImpl) UpdateOutcome(id string, update *WithdrawalUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE withdrawals
		SET status=$1,
			commission=$2,
			message=$3,
			failure_reason=$4,
			receiver_name=$5,
			payment_reference_id=$6,
			yandex_transaction_id=$7,
			bank_transaction_ref_no=$8,
			bank_payment_no=$9,
			updated_at=NOW()
		WHERE id=$10`

	_, err := repo.db.ExecContext(ctx, query,
		update.Status,
		update.Commission,
		update.Message,
		update.FailureReason,
		update.ReceiverName,
		update.PaymentReferenceID,
		update.YandexTransactionID,
		update.BankTransactionRefNo,
		update.BankPaymentNo,
		id,
	)

	return err
}

// HasWithStatus reports whether the user has any withdrawal in one of the
// given statuses. It backs the one-in-flight-per-user rule.
func (repo *WithdrawalRepositoryImpl) HasWithStatus(userID string, statuses ...int) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query, args, err := sqlx.In(
		`SELECT EXISTS(SELECT 1 FROM withdrawals WHERE user_id=? AND status IN (?))`,
		userID, statuses,
	)
	if err != nil {
		return false, err
	}

	var exists bool

	err = repo.db.GetContext(ctx, &exists, repo.db.Rebind(query), args...)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// SumSince totals the user's withdrawal amounts created at or after the given
// moment, skipping the excluded statuses. It backs the daily-limit check.
func (repo *WithdrawalRepositoryImpl) SumSince(userID string, since time.Time, excludedStatuses ...int) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if len(excludedStatuses) == 0 {
		excludedStatuses = []int{-1}
	}

	query, args, err := sqlx.In(
		`SELECT COALESCE(SUM(amount), 0) FROM withdrawals WHERE user_id=? AND created_at >= ? AND status NOT IN (?)`,
		userID, since, excludedStatuses,
	)
	if err != nil {
		return 0, err
	}

	var total float64

	err = repo.db.GetContext(ctx, &total, repo.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}

	return total, nil
}
