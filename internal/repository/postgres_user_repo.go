package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/books2digital/backend/internal/model"
)

// uniqueViolation はPostgreSQLのunique_violationエラーコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// userColumns はSELECT句で取得するカラムの並び。scanUserと対応を保つこと。
const userColumns = `id, email, password_hash,
	first_name, last_name, COALESCE(preferred_name, ''), dob, COALESCE(phone, ''),
	COALESCE(unit_number, ''), street, city, province, postal_code, country,
	COALESCE(stripe_customer_id, ''),
	email_verified, email_verified_at, last_login_at, created_at, updated_at`

// scanUser は1行分のユーザーをスキャンする。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.PreferredName, &user.DOB, &user.Phone,
		&user.UnitNumber, &user.Street, &user.City, &user.Province, &user.PostalCode, &user.Country,
		&user.StripeCustomerID,
		&user.EmailVerified, &user.EmailVerifiedAt, &user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return user, nil
}

// Create はユーザーを作成する。
// emailの一意制約違反はDUPLICATE_EMAILのAPIErrorに変換する。
// 別の仮登録が同じemailで先に本登録を完了したレースはここで顕在化する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (
			id, email, password_hash,
			first_name, last_name, preferred_name, dob, phone,
			unit_number, street, city, province, postal_code, country,
			email_verified, email_verified_at, created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, NULLIF($6, ''), $7, NULLIF($8, ''),
			NULLIF($9, ''), $10, $11, $12, $13, $14,
			$15, $16, $17, $18
		)`,
		user.ID, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.PreferredName, user.DOB, user.Phone,
		user.UnitNumber, user.Street, user.City, user.Province, user.PostalCode, user.Country,
		user.EmailVerified, user.EmailVerifiedAt, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.NewDuplicateEmailError()
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// SetStripeCustomerID はStripe顧客IDをユーザーに紐付ける。
// 既に設定済みの行は変更しない（最大1回のみの紐付け）。
func (r *PostgresUserRepo) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET stripe_customer_id = $2, updated_at = now()
		 WHERE id = $1 AND stripe_customer_id IS NULL`,
		userID, customerID,
	)
	if err != nil {
		return fmt.Errorf("failed to set stripe customer ID: %w", err)
	}
	return nil
}

// UpdateLastLogin は最終ログイン日時を更新する。
func (r *PostgresUserRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2, updated_at = now() WHERE id = $1`,
		userID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
