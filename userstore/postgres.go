package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vitadrop/vitaauth"
	"github.com/vitadrop/vitaauth/internal/dbx"
)

// DB is satisfied by *sql.DB.
type DB interface {
	dbx.DBTX
	dbx.TxBeginner
}

// PostgresStore keeps users in the users table.
type PostgresStore struct {
	db    DB
	now   func() time.Time
	newID func() string
}

func NewPostgresStore(db DB, opts ...Option) *PostgresStore {
	o := buildOptions(opts)
	return &PostgresStore{db: db, now: o.now, newID: o.newID}
}

const userColumns = `id, full_name, email, password_hash, phone, gender, role, blood_group,
		division, district, upazila, photo_url, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (vitaauth.User, error) {
	var u vitaauth.User
	err := row.Scan(
		&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Phone,
		&u.Gender, &u.Role, &u.BloodGroup,
		&u.Location.Division, &u.Location.District, &u.Location.Upazila,
		&u.PhotoURL, &u.Status, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", vitaauth.ErrStoreUnavailable, err)
}

func (s *PostgresStore) getOne(ctx context.Context, db dbx.DBTX, query string, arg any) (vitaauth.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vitaauth.User{}, vitaauth.ErrUserNotFound
		}
		return vitaauth.User{}, unavailable(err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (vitaauth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.getOne(ctx, s.db, query, vitaauth.NormalizeEmail(email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (vitaauth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.getOne(ctx, s.db, query, userID)
}

// CreateUser inserts a new active user. A taken email returns
// [vitaauth.ErrAccountExists].
func (s *PostgresStore) CreateUser(ctx context.Context, in vitaauth.CreateUserInput) (vitaauth.User, error) {
	u := newUser(in, s.newID(), s.now().UTC())

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (email) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		u.ID, u.FullName, u.Email, u.PasswordHash, u.Phone,
		string(u.Gender), string(u.Role), string(u.BloodGroup),
		u.Location.Division, u.Location.District, u.Location.Upazila,
		u.PhotoURL, string(u.Status), u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return vitaauth.User{}, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return vitaauth.User{}, unavailable(err)
	}
	if n == 0 {
		return vitaauth.User{}, vitaauth.ErrAccountExists
	}
	return u, nil
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, userID, hash, s.now().UTC())
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return vitaauth.ErrUserNotFound
	}
	return nil
}

// UpdateProfile locks the row, applies patch, and writes it back in one
// transaction.
func (s *PostgresStore) UpdateProfile(ctx context.Context, userID string, patch vitaauth.ProfilePatch) (vitaauth.User, error) {
	var updated vitaauth.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
		u, err := s.getOne(ctx, tx, query, userID)
		if err != nil {
			return err
		}

		applyPatch(&u, patch, s.now().UTC())

		update := `
			UPDATE users
			SET full_name = $2, phone = $3, gender = $4, blood_group = $5,
			    division = $6, district = $7, upazila = $8, photo_url = $9, updated_at = $10
			WHERE id = $1
		`
		if _, err := tx.ExecContext(ctx, update,
			u.ID, u.FullName, u.Phone, string(u.Gender), string(u.BloodGroup),
			u.Location.Division, u.Location.District, u.Location.Upazila,
			u.PhotoURL, u.UpdatedAt,
		); err != nil {
			return unavailable(err)
		}
		updated = u
		return nil
	})
	if err != nil {
		if errors.Is(err, vitaauth.ErrUserNotFound) || errors.Is(err, vitaauth.ErrStoreUnavailable) {
			return vitaauth.User{}, err
		}
		return vitaauth.User{}, unavailable(err)
	}
	return updated, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]vitaauth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var users []vitaauth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return users, nil
}

var _ vitaauth.UserProvider = (*PostgresStore)(nil)
