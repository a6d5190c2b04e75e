package userstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/vitadrop/vitaauth"
)

var pgNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newPostgresStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	s := NewPostgresStore(db,
		WithClock(func() time.Time { return pgNow }),
		WithIDGenerator(func() string { return "id-1" }),
	)
	return s, mock, db
}

const (
	insertUserQuery  = `(?s)^\s*INSERT\s+INTO\s+users\b.*ON\s+CONFLICT\s+\(email\)\s+DO\s+NOTHING\s*$`
	selectByEmail    = `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`
	selectByID       = `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`
	selectForUpdate  = `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE$`
	updateProfileSQL = `(?s)^\s*UPDATE\s+users\s+SET\s+full_name\s*=\s*\$2.*WHERE\s+id\s*=\s*\$1\s*$`
	updateHashSQL    = `(?s)^UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$2,\s*updated_at\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$1$`
	listUsersSQL     = `(?s)^SELECT\s+id,.*FROM\s+users\s+ORDER\s+BY\s+created_at\s+ASC,\s*id\s+ASC$`
)

var userCols = []string{
	"id", "full_name", "email", "password_hash", "phone", "gender", "role", "blood_group",
	"division", "district", "upazila", "photo_url", "status", "created_at", "updated_at",
}

func userRow(rows *sqlmock.Rows, id, email string, created time.Time) *sqlmock.Rows {
	return rows.AddRow(id, "Ayesha Rahman", email, "hash", "01700000000", "female", "donor", "A+",
		"Dhaka", "Dhaka", "Savar", "", "active", created, created)
}

func TestPostgresCreateUser(t *testing.T) {
	s, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertUserQuery).
		WithArgs("id-1", "Ayesha Rahman", "a@x.com", "hash", "", "", "donor", "",
			"", "", "", "", "active", pgNow, pgNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := s.CreateUser(context.Background(), vitaauth.CreateUserInput{
		FullName:     "Ayesha Rahman",
		Email:        "A@x.com",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID != "id-1" || u.Email != "a@x.com" || u.Role != vitaauth.RoleDonor {
		t.Fatalf("unexpected user %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreateUserDuplicate(t *testing.T) {
	s, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertUserQuery).WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.CreateUser(context.Background(), vitaauth.CreateUserInput{FullName: "Dup", Email: "a@x.com"})
	if !errors.Is(err, vitaauth.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestPostgresCreateUserDBError(t *testing.T) {
	s, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertUserQuery).WillReturnError(errors.New("connection reset"))

	_, err := s.CreateUser(context.Background(), vitaauth.CreateUserInput{FullName: "X Y", Email: "a@x.com"})
	if !errors.Is(err, vitaauth.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestPostgresGetUserByEmail(t *testing.T) {
	s, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByEmail).
		WithArgs("a@x.com").
		WillReturnRows(userRow(sqlmock.NewRows(userCols), "id-1", "a@x.com", pgNow))

	u, err := s.GetUserByEmail(context.Background(), " A@X.COM")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.ID != "id-1" || u.Gender != vitaauth.GenderFemale || u.BloodGroup != vitaauth.BloodAPos {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.Location.Upazila != "Savar" || u.Status != vitaauth.StatusActive {
		t.Fatalf("unexpected location/status %+v", u)
	}
}

func TestPostgresGetUserByIDNotFound(t *testing.T) {
	s, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByID).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := s.GetUserByID(context.Background(), "nope")
	if !errors.Is(err, vitaauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPostgresUpdatePasswordHash(t *testing.T) {
	s, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(updateHashSQL).
		WithArgs("id-1", "new-hash", pgNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateHashSQL).
		WithArgs("ghost", "new-hash", pgNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.UpdatePasswordHash(context.Background(), "id-1", "new-hash"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	if err := s.UpdatePasswordHash(context.Background(), "ghost", "new-hash"); !errors.Is(err, vitaauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPostgresUpdateProfileInTransaction(t *testing.T) {
	s, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	created := pgNow.Add(-time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdate).
		WithArgs("id-1").
		WillReturnRows(userRow(sqlmock.NewRows(userCols), "id-1", "a@x.com", created))
	mock.ExpectExec(updateProfileSQL).
		WithArgs("id-1", "New Name", "01700000000", "female", "A+", "Dhaka", "Dhaka", "Savar", "", pgNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name := "New Name"
	u, err := s.UpdateProfile(context.Background(), "id-1", vitaauth.ProfilePatch{FullName: &name})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.FullName != "New Name" || !u.UpdatedAt.Equal(pgNow) {
		t.Fatalf("unexpected user %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdateProfileMissingRollsBack(t *testing.T) {
	s, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdate).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	name := "Nobody"
	_, err := s.UpdateProfile(context.Background(), "ghost", vitaauth.ProfilePatch{FullName: &name})
	if !errors.Is(err, vitaauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresListUsers(t *testing.T) {
	s, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(userCols)
	userRow(rows, "id-1", "a@x.com", pgNow.Add(-2*time.Hour))
	userRow(rows, "id-2", "b@x.com", pgNow.Add(-time.Hour))
	mock.ExpectQuery(listUsersSQL).WillReturnRows(rows)

	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0].ID != "id-1" || users[1].ID != "id-2" {
		t.Fatalf("unexpected users %+v", users)
	}
}
