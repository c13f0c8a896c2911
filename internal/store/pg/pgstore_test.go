package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"joinarr.org/internal/provision"
)

var userCols = []string{"id", "username", "email", "password", "remote_id", "code", "expires", "created_at"}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestUserCreateFillsDefaults(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), "alice", "alice@example.com", "emby-user", "remote-1", "WELCOME", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &provision.User{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "emby-user",
		RemoteID: "remote-1",
		Code:     "WELCOME",
	}
	if err := store.Users(context.Background()).Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("Create must assign an id")
	}
	if u.CreatedAt.IsZero() {
		t.Fatal("Create must stamp created_at")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUserFindByUsernameOrEmail(t *testing.T) {
	store, mock := newMock(t)
	created := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("select id, username, email, password, remote_id, code, expires, created_at from users where username").
		WithArgs("alice", "alice@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "alice", "alice@example.com", "emby-user", "remote-1", "WELCOME", nil, created))

	u, err := store.Users(context.Background()).FindByUsernameOrEmail(context.Background(), "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("FindByUsernameOrEmail: %v", err)
	}
	if u.ID != "u1" || u.RemoteID != "remote-1" {
		t.Fatalf("user = %+v", u)
	}
	if u.Expires != nil {
		t.Fatal("null expires must map to nil")
	}
}

func TestUserFindByRemoteIDNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("from users where remote_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := store.Users(context.Background()).FindByRemoteID(context.Background(), "missing")
	if !errors.Is(err, provision.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInvitationFindByCodeLoadsLibrariesInOrder(t *testing.T) {
	store, mock := newMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("from invitations where code").
		WithArgs("WELCOME").
		WillReturnRows(sqlmock.NewRows([]string{"code", "unlimited", "duration_days", "expires", "used", "used_at", "used_by", "created_at"}).
			AddRow("WELCOME", false, 7, nil, false, nil, nil, created))
	mock.ExpectQuery("select library_ref from invitation_libraries where code").
		WithArgs("WELCOME").
		WillReturnRows(sqlmock.NewRows([]string{"library_ref"}).AddRow("lib1").AddRow("Shows"))

	inv, err := store.Invitations(context.Background()).FindByCode(context.Background(), "WELCOME")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if inv.DurationDays != 7 || inv.Used || inv.Unlimited {
		t.Fatalf("invitation = %+v", inv)
	}
	if len(inv.Libraries) != 2 || inv.Libraries[0] != "lib1" || inv.Libraries[1] != "Shows" {
		t.Fatalf("libraries = %v", inv.Libraries)
	}
}

func TestInvitationMarkUsedUnknownCode(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("update invitations set used").
		WithArgs("NOPE", true, sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Invitations(context.Background()).MarkUsed(context.Background(), "NOPE", "u1", time.Now(), true)
	if !errors.Is(err, provision.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLibraryUpsert(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into libraries").
		WithArgs(sqlmock.AnyArg(), "lib1", "Movies", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	lib := &provision.Library{ExternalID: "lib1", Name: "Movies", Enabled: true}
	if err := store.Libraries(context.Background()).Upsert(context.Background(), lib); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if lib.ID == "" {
		t.Fatal("Upsert must assign an id")
	}
}

func TestLibraryListEnabled(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("from libraries where enabled").
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "name", "enabled"}).
			AddRow("1", "lib1", "Movies", true))

	libs, err := store.Libraries(context.Background()).ListEnabled(context.Background())
	if err != nil {
		t.Fatalf("ListEnabled: %v", err)
	}
	if len(libs) != 1 || libs[0].ExternalID != "lib1" {
		t.Fatalf("libs = %+v", libs)
	}
}

func TestTxCommitThenDeferredRollback(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() {
		// Rollback after a successful commit must be a silent no-op.
		if err := tx.Rollback(); err != nil {
			t.Errorf("Rollback after Commit: %v", err)
		}
	}()

	u := &provision.User{Username: "alice", Email: "a@example.com", Password: "emby-user", RemoteID: "r1", Code: "C"}
	if err := tx.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTxRollbackDiscardsWrites(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("update invitations set used").
		WithArgs("WELCOME", true, sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Invitations().MarkUsed(context.Background(), "WELCOME", "u1", time.Now(), true); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
