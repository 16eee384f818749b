package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"hpcgateway/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

var userRowColumns = []string{"id", "email", "name", "home", "created_at"}

func TestCreateUser_New(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	createdAt := time.Now()

	mock.ExpectExec(`INSERT INTO users .* ON CONFLICT \(email\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), "a@b.c", "A B", "/scratch/a", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, email, name, home, created_at FROM users WHERE email = \$1`).
		WithArgs("a@b.c").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("11111111-1111-1111-1111-111111111111", "a@b.c", "A B", "/scratch/a", createdAt))

	user, err := s.CreateUser(ctx, "a@b.c", "A B", "/scratch/a")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.Name != "A B" {
		t.Errorf("got Name %q, want %q", user.Name, "A B")
	}
	if user.Home != "/scratch/a" {
		t.Errorf("got Home %q, want %q", user.Home, "/scratch/a")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateUser_ExistingKeepsFirstName(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()

	// Conflict: no row inserted, the stored record is returned as-is.
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "a@b.c", "Other Name", "/scratch/a", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, email, name, home, created_at FROM users WHERE email = \$1`).
		WithArgs("a@b.c").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("11111111-1111-1111-1111-111111111111", "a@b.c", "A B", "/scratch/a", time.Now()))

	user, err := s.CreateUser(ctx, "a@b.c", "Other Name", "/scratch/a")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.Name != "A B" {
		t.Errorf("existing user was overwritten: got Name %q", user.Name)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateUser_InsertError(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(sql.ErrConnDone)

	if _, err := s.CreateUser(context.Background(), "a@b.c", "A", "/h"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestGetUser_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT id, email, name, home, created_at FROM users WHERE email = \$1`).
		WithArgs("missing@b.c").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetUser(context.Background(), "missing@b.c")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected store.ErrNotFound, got %v", err)
	}
}

func TestGetUser_DatabaseError(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT id, email, name, home, created_at FROM users`).
		WillReturnError(sql.ErrConnDone)

	_, err := s.GetUser(context.Background(), "a@b.c")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, store.ErrNotFound) {
		t.Error("connection errors must not be reported as not found")
	}
}
