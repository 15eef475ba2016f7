package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

type User struct {
	ID             string       `db:"id"`
	FirstName      string       `db:"first_name"`
	LastName       string       `db:"last_name"`
	Email          string       `db:"email"`
	PhoneNumber    string       `db:"phone_number"`
	HashedPassword string       `db:"hashed_password"`
	Status         string       `db:"status"`
	CreatedAt      time.Time    `db:"created_at"`
	VerifiedAt     sql.NullTime `db:"verified_at"`
	DeletedAt      sql.NullTime `db:"deleted_at"`
}

const (
	// UserAccountActiveStatus indicates that the user's account is active and fully functional.
	UserAccountActiveStatus = "active"

	// UserAccountLockedStatus indicates that the user's account has been locked.
	// A locked account cannot initiate withdrawals until unlocked.
	UserAccountLockedStatus = "locked"
)

type UserRepository interface {
	CheckIfPhoneNumberExist(phoneNumber string) (bool, error)
	Insert(user *User, tx *sqlx.Tx) (string, error)
	GetOne(id string) (*User, bool, error)
	GetByEmail(email string) (*User, bool, error)
	Lock(id string) error
}

type UserRepositoryImpl struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &UserRepositoryImpl{db: db}
}

func (repo *UserRepositoryImpl) Insert(user *User, tx *sqlx.Tx) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id string
	query := `
		INSERT INTO users (first_name, last_name, email, phone_number, hashed_password)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	if tx != nil {
		err := tx.QueryRowContext(ctx, query,
			user.FirstName,
			user.LastName,
			user.Email,
			user.PhoneNumber,
			user.HashedPassword,
		).Scan(&id)
		if err != nil {
			return "", err
		}
	} else {
		err := repo.db.GetContext(ctx, &id, query,
			user.FirstName,
			user.LastName,
			user.Email,
			user.PhoneNumber,
			user.HashedPassword,
		)
		if err != nil {
			return "", err
		}
	}

	return id, nil
}

func (repo *UserRepositoryImpl) GetOne(id string) (*User, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var user User

	query := `SELECT * FROM users WHERE id = $1`

	err := repo.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &user, true, err
}

func (repo *UserRepositoryImpl) GetByEmail(email string) (*User, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var user User

	query := `SELECT * FROM users WHERE email = $1`

	err := repo.db.GetContext(ctx, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &user, true, err
}

func (repo *UserRepositoryImpl) CheckIfPhoneNumberExist(phoneNumber string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var exists bool

	query := `SELECT EXISTS(SELECT 1 FROM users WHERE phone_number = $1)`

	err := repo.db.GetContext(ctx, &exists, query, phoneNumber)
	if err != nil {
		return false, err
	}

	return exists, nil
}

func (repo *UserRepositoryImpl) Lock(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE users SET status = $1 WHERE id = $2`

	_, err := repo.db.ExecContext(ctx, query, UserAccountLockedStatus, id)
	return err
}
