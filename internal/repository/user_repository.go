package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sarthi/gateway/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, account models.Account) error {
	const query = `
		INSERT INTO users (
			id, username, password_hash, name, role, email, mobile_number,
			father_name, mother_name, photo_url, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Username,
		account.PasswordHash,
		account.Name,
		account.Role,
		account.Email,
		account.MobileNumber,
		account.FatherName,
		account.MotherName,
		account.PhotoURL,
	)
	return err
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (models.Account, error) {
	const query = `
		SELECT id, username, password_hash, name, role,
		       COALESCE(email, ''), COALESCE(mobile_number, ''),
		       COALESCE(father_name, ''), COALESCE(mother_name, ''), COALESCE(photo_url, ''),
		       created_at, updated_at
		FROM users WHERE username = $1
	`

	row := r.pool.QueryRow(ctx, query, username)
	var account models.Account
	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.Name,
		&account.Role,
		&account.Email,
		&account.MobileNumber,
		&account.FatherName,
		&account.MotherName,
		&account.PhotoURL,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrUserNotFound
		}
		return models.Account{}, err
	}
	return account, nil
}
