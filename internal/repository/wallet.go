package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

type Wallet struct {
	ID             string       `db:"id"`
	UserID         string       `db:"user_id"`
	Balance        float64      `db:"balance"`
	BlockedBalance float64      `db:"blocked_balance"`
	Currency       string       `db:"currency"`
	Status         string       `db:"status"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      sql.NullTime `db:"updated_at"`
	DeletedAt      sql.NullTime `db:"deleted_at"`
}

const (
	WalletActiveStatus = "active"
	WalletOnHoldStatus = "on-hold"
)

type WalletRepository interface {
	Insert(wallet *Wallet, tx *sqlx.Tx) (string, error)
	GetByUserId(userID string) (*Wallet, bool, error)
	Debit(walletID string, amount float64) (bool, error)
	Credit(walletID string, amount float64) (bool, error)
}

type WalletRepositoryImpl struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) WalletRepository {
	return &WalletRepositoryImpl{db: db}
}

func (repo *WalletRepositoryImpl) Insert(wallet *Wallet, tx *sqlx.Tx) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id string

	query := `
		INSERT INTO wallets (user_id)
		VALUES ($1)
		RETURNING id`
	if tx != nil {
		err := tx.QueryRowContext(ctx, query,
			wallet.UserID,
		).Scan(&id)
		if err != nil {
			return "", err
		}
	} else {
		err := repo.db.GetContext(ctx, &id, query,
			wallet.UserID,
		)
		if err != nil {
			return "", err
		}
	}

	return id, nil
}

func (repo *WalletRepositoryImpl) GetByUserId(userID string) (*Wallet, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var wallet Wallet

	query := `
        SELECT id, user_id, balance, blocked_balance, currency, status, created_at FROM wallets WHERE user_id=$1 AND deleted_at IS NULL`

	err := repo.db.GetContext(ctx, &wallet, query, userID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &wallet, true, nil
}

func (repo *WalletRepositoryImpl) Debit(walletID string, amount float64) (bool, error) {
	// we need to first check that the withdrawable part of the balance can cover
	// the amount, holding the row for the duration of the operation.
	// The boolean result tells the caller whether the debit was applied.

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}

	defer tx.Rollback()

	var wallet Wallet

	query := `
		SELECT balance, blocked_balance FROM wallets WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`

	err = tx.GetContext(ctx, &wallet, query, walletID)
	if err != nil {
		return false, err
	}

	if wallet.Balance-wallet.BlockedBalance < amount {
		return false, nil
	}

	query = `
		UPDATE wallets SET balance=balance-$1, updated_at=NOW() WHERE id=$2 AND deleted_at IS NULL`

	_, err = tx.ExecContext(ctx, query, amount, walletID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	return true, nil
}

func (repo *WalletRepositoryImpl) Credit(walletID string, amount float64) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE wallets SET balance=balance+$1, updated_at=NOW() WHERE id=$2 AND deleted_at IS NULL`

	result, err := repo.db.ExecContext(ctx, query, amount, walletID)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}
