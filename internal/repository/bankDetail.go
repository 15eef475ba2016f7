package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// BankDetail holds the payout destination a user saved for prefilling the
// withdrawal form. A user has at most one saved destination.
type BankDetail struct {
	ID                string       `db:"id"`
	UserID            string       `db:"user_id"`
	IBAN              string       `db:"iban"`
	AccountHolderName string       `db:"account_holder_name"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         sql.NullTime `db:"updated_at"`
}

type BankDetailRepository interface {
	GetByUserId(userID string) (*BankDetail, bool, error)
	Upsert(detail *BankDetail) error
}

type BankDetailRepositoryImpl struct {
	db *sqlx.DB
}

func NewBankDetailRepository(db *sqlx.DB) BankDetailRepository {
	return &BankDetailRepositoryImpl{db: db}
}

func (repo *BankDetailRepositoryImpl) GetByUserId(userID string) (*BankDetail, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var detail BankDetail

	query := `
        SELECT id, user_id, iban, account_holder_name, created_at FROM bank_details WHERE user_id=$1`

	err := repo.db.GetContext(ctx, &detail, query, userID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &detail, true, nil
}

func (repo *BankDetailRepositoryImpl) Upsert(detail *BankDetail) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		INSERT INTO bank_details (user_id, iban, account_holder_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET iban=EXCLUDED.iban, account_holder_name=EXCLUDED.account_holder_name, updated_at=NOW()`

	_, err := repo.db.ExecContext(ctx, query,
		detail.UserID,
		detail.IBAN,
		detail.AccountHolderName,
	)

	return err
}
