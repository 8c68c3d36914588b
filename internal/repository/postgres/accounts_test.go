package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
	"github.com/mmudassir0/ecommerce-auth/internal/repository"
)

func TestAccountRepository_GetByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	createdAt := time.Now().UTC()
	hash := "bcrypt-hash"

	rows := pgxmock.NewRows([]string{
		"id", "email", "password_hash", "role", "status", "is_verified", "two_factor_enabled",
		"failed_login_attempts", "locked_until", "two_factor_code_hash", "two_factor_expires_at",
		"reset_token_hash", "reset_expires_at", "last_password_change", "last_login_at",
		"terms_accepted", "created_at", "deleted_at",
	}).AddRow(
		"acct-1", "shopper@example.com", &hash, "customer", domain.AccountStatusActive, true, false,
		0, nil, nil, nil,
		nil, nil, createdAt, nil,
		true, createdAt, nil,
	)

	mock.ExpectQuery(`SELECT .* FROM accounts WHERE email = \$1 AND deleted_at IS NULL`).
		WithArgs("shopper@example.com").
		WillReturnRows(rows)

	account, err := repo.GetByEmail(context.Background(), "shopper@example.com")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if account.ID != "acct-1" {
		t.Fatalf("expected account id acct-1, got %s", account.ID)
	}
	if account.PasswordHash == nil || *account.PasswordHash != hash {
		t.Fatal("expected password hash populated")
	}
	if account.Status != domain.AccountStatusActive {
		t.Fatalf("expected active status, got %s", account.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_GetByEmailNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectQuery(`SELECT .* FROM accounts WHERE email = \$1`).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_RecordFailedLoginBelowThreshold(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	now := time.Now().UTC()
	activity := domain.ActivityRecord{
		ID:        "act-1",
		AccountID: "acct-1",
		Action:    domain.ActivityLoginFailed,
		CreatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT failed_login_attempts FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"failed_login_attempts"}).AddRow(1))
	mock.ExpectExec(`UPDATE accounts SET failed_login_attempts = \$2 WHERE id = \$1`).
		WithArgs("acct-1", 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO activity_log`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	result, err := repo.RecordFailedLogin(context.Background(), "acct-1", 5, 15*time.Minute, activity)
	if err != nil {
		t.Fatalf("RecordFailedLogin returned error: %v", err)
	}
	if result.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", result.Attempts)
	}
	if result.LockedUntil != nil {
		t.Fatal("lock should not trip below the threshold")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_RecordFailedLoginTripsLock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	now := time.Now().UTC()
	lockFor := 15 * time.Minute
	activity := domain.ActivityRecord{
		ID:        "act-1",
		AccountID: "acct-1",
		Action:    domain.ActivityLoginFailed,
		CreatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT failed_login_attempts FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"failed_login_attempts"}).AddRow(4))
	mock.ExpectExec(`UPDATE accounts SET failed_login_attempts = \$2, locked_until = \$3 WHERE id = \$1`).
		WithArgs("acct-1", 5, now.Add(lockFor)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// The lock transition and the failed attempt each leave an audit row.
	mock.ExpectExec(`INSERT INTO activity_log`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO activity_log`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	result, err := repo.RecordFailedLogin(context.Background(), "acct-1", 5, lockFor, activity)
	if err != nil {
		t.Fatalf("RecordFailedLogin returned error: %v", err)
	}
	if result.Attempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", result.Attempts)
	}
	if result.LockedUntil == nil || !result.LockedUntil.Equal(now.Add(lockFor)) {
		t.Fatalf("expected lock until %v, got %v", now.Add(lockFor), result.LockedUntil)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_RotatePassword(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	now := time.Now().UTC()
	activity := domain.ActivityRecord{
		ID:        "act-1",
		AccountID: "acct-1",
		Action:    domain.ActivityPasswordChanged,
		CreatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE accounts`).
		WithArgs("acct-1", "new-hash", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO password_history`).
		WithArgs("acct-1", "new-hash", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM password_history`).
		WithArgs("acct-1", 3).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO activity_log`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := repo.RotatePassword(context.Background(), "acct-1", "new-hash", now, 3, activity); err != nil {
		t.Fatalf("RotatePassword returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_RotatePasswordUnknownAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE accounts`).
		WithArgs("missing", "new-hash", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err = repo.RotatePassword(context.Background(), "missing", "new-hash", now, 3, domain.ActivityRecord{})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_EmailInUse(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectQuery(`SELECT 1 FROM accounts WHERE email = \$1 AND deleted_at IS NULL`).
		WithArgs("shopper@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	taken, err := repo.EmailInUse(context.Background(), "shopper@example.com", false)
	if err != nil {
		t.Fatalf("EmailInUse returned error: %v", err)
	}
	if !taken {
		t.Fatal("expected email to be reported in use")
	}

	mock.ExpectQuery(`SELECT 1 FROM accounts WHERE email = \$1`).
		WithArgs("fresh@example.com").
		WillReturnError(pgx.ErrNoRows)

	taken, err = repo.EmailInUse(context.Background(), "fresh@example.com", true)
	if err != nil {
		t.Fatalf("EmailInUse returned error: %v", err)
	}
	if taken {
		t.Fatal("expected email to be reported free")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
