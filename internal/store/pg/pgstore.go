package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"joinarr.org/internal/ids"
	"joinarr.org/internal/provision"
)

// Store implements provision.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ provision.Store = (*Store)(nil)

// Open connects with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle (tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users(ctx context.Context) provision.UserStore {
	return &userStore{q: s.db}
}

func (s *Store) Invitations(ctx context.Context) provision.InvitationStore {
	return &invitationStore{q: s.db}
}

func (s *Store) Libraries(ctx context.Context) provision.LibraryStore {
	return &libraryStore{q: s.db}
}

// Begin opens an explicit transaction handle. Rollback on a committed
// handle is a no-op so it can be deferred unconditionally.
func (s *Store) Begin(ctx context.Context) (provision.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Users() provision.UserStore {
	return &userStore{q: t.tx}
}

func (t *pgTx) Invitations() provision.InvitationStore {
	return &invitationStore{q: t.tx}
}

func (t *pgTx) Commit() error { return t.tx.Commit() }

func (t *pgTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// User store ---------------------------------------------------------------

type userStore struct{ q querier }

const userColumns = `id, username, email, password, remote_id, code, expires, created_at`

func (s *userStore) Create(ctx context.Context, u *provision.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		insert into users(id, username, email, password, remote_id, code, expires, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, u.ID, u.Username, u.Email, u.Password, u.RemoteID, u.Code, nullTime(u.Expires), u.CreatedAt)
	if isUniqueViolation(err) {
		return provision.ErrAlreadyExists
	}
	return err
}

func (s *userStore) FindByRemoteID(ctx context.Context, remoteID string) (*provision.User, error) {
	row := s.q.QueryRowContext(ctx, `select `+userColumns+` from users where remote_id=$1`, remoteID)
	return scanUser(row)
}

func (s *userStore) FindByUsernameOrEmail(ctx context.Context, username, email string) (*provision.User, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1 or email=$2`, username, email)
	return scanUser(row)
}

func (s *userStore) List(ctx context.Context) ([]*provision.User, error) {
	rows, err := s.q.QueryContext(ctx, `select `+userColumns+` from users order by created_at asc, id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*provision.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `delete from users where id=$1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*provision.User, error) {
	var (
		u       provision.User
		expires sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.RemoteID, &u.Code, &expires, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, provision.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		u.Expires = &t
	}
	return &u, nil
}

// Invitation store ---------------------------------------------------------

type invitationStore struct{ q querier }

func (s *invitationStore) FindByCode(ctx context.Context, code string) (*provision.Invitation, error) {
	var (
		inv     provision.Invitation
		expires sql.NullTime
		usedAt  sql.NullTime
		usedBy  sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `
		select code, unlimited, duration_days, expires, used, used_at, used_by, created_at
		from invitations where code=$1
	`, code).Scan(&inv.Code, &inv.Unlimited, &inv.DurationDays, &expires, &inv.Used, &usedAt, &usedBy, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, provision.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		inv.Expires = &t
	}
	if usedAt.Valid {
		t := usedAt.Time
		inv.UsedAt = &t
	}
	if usedBy.Valid {
		inv.UsedBy = usedBy.String
	}

	rows, err := s.q.QueryContext(ctx,
		`select library_ref from invitation_libraries where code=$1 order by position asc`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		inv.Libraries = append(inv.Libraries, ref)
	}
	return &inv, rows.Err()
}

func (s *invitationStore) MarkUsed(ctx context.Context, code, usedBy string, at time.Time, used bool) error {
	res, err := s.q.ExecContext(ctx, `
		update invitations set used=$2, used_at=$3, used_by=$4 where code=$1
	`, code, used, at, usedBy)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return provision.ErrNotFound
	}
	return nil
}

// Library store ------------------------------------------------------------

type libraryStore struct{ q querier }

func (s *libraryStore) List(ctx context.Context) ([]*provision.Library, error) {
	return s.list(ctx, `select id, external_id, name, enabled from libraries order by name asc`)
}

func (s *libraryStore) ListEnabled(ctx context.Context) ([]*provision.Library, error) {
	return s.list(ctx, `select id, external_id, name, enabled from libraries where enabled order by name asc`)
}

func (s *libraryStore) list(ctx context.Context, query string) ([]*provision.Library, error) {
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*provision.Library
	for rows.Next() {
		var lib provision.Library
		if err := rows.Scan(&lib.ID, &lib.ExternalID, &lib.Name, &lib.Enabled); err != nil {
			return nil, err
		}
		res = append(res, &lib)
	}
	return res, rows.Err()
}

func (s *libraryStore) Upsert(ctx context.Context, lib *provision.Library) error {
	if lib.ID == "" {
		lib.ID = ids.New()
	}
	_, err := s.q.ExecContext(ctx, `
		insert into libraries(id, external_id, name, enabled)
		values ($1,$2,$3,$4)
		on conflict (external_id) do update set name = excluded.name
	`, lib.ID, lib.ExternalID, lib.Name, lib.Enabled)
	return err
}

// --- helpers ---

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
