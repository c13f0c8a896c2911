package provision

import (
	"context"
	"errors"
	"time"
)

// User mirrors a provisioned remote account locally. RemoteID is the
// remote-assigned identifier and the foreign key into the media-server
// directory; Password only ever holds a placeholder marker.
type User struct {
	ID        string
	Username  string
	Email     string
	Password  string
	RemoteID  string
	Code      string
	Expires   *time.Time
	CreatedAt time.Time
}

// Invitation authorizes joins. Libraries holds library references (external
// identifiers or display names) scoping the grant; an empty list means
// every locally enabled library.
type Invitation struct {
	Code         string
	Libraries    []string
	Unlimited    bool
	DurationDays int
	Expires      *time.Time
	Used         bool
	UsedAt       *time.Time
	UsedBy       string
	CreatedAt    time.Time
}

// Library is a locally known media library and its remote external id.
type Library struct {
	ID         string
	ExternalID string
	Name       string
	Enabled    bool
}

var (
	ErrNotFound      = errors.New("provision: not found")
	ErrAlreadyExists = errors.New("provision: already exists")
)

// Store describes the persistence operations the workflow needs. The
// top-level accessors auto-commit; Begin hands out an explicit
// transaction-scoped handle. Tx.Rollback after a successful Commit is a
// no-op, so it can be deferred on every exit path.
type Store interface {
	Users(ctx context.Context) UserStore
	Invitations(ctx context.Context) InvitationStore
	Libraries(ctx context.Context) LibraryStore
	Begin(ctx context.Context) (Tx, error)
}

// Tx scopes writes to a single database transaction.
type Tx interface {
	Users() UserStore
	Invitations() InvitationStore
	Commit() error
	Rollback() error
}

// UserStore manages local user records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	FindByRemoteID(ctx context.Context, remoteID string) (*User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Delete(ctx context.Context, id string) error
}

// InvitationStore manages invitation records.
type InvitationStore interface {
	FindByCode(ctx context.Context, code string) (*Invitation, error)
	// MarkUsed stamps consumption metadata. The caller decides the used
	// flag (reusable invitations keep their prior value).
	MarkUsed(ctx context.Context, code, usedBy string, at time.Time, used bool) error
}

// LibraryStore manages the local library table.
type LibraryStore interface {
	List(ctx context.Context) ([]*Library, error)
	ListEnabled(ctx context.Context) ([]*Library, error)
	// Upsert inserts a library as enabled or refreshes the name of an
	// existing row, preserving its enabled flag.
	Upsert(ctx context.Context, lib *Library) error
}

// InviteChecker applies the invitation validity rules. It is consumed as a
// collaborator; the rule engine itself lives elsewhere.
type InviteChecker interface {
	IsValid(ctx context.Context, code string) (bool, string)
}

// Notifier announces events. Delivery is fire-and-forget; failures must
// never fail the calling workflow.
type Notifier interface {
	Notify(ctx context.Context, title, body, tags string) error
}
