package directory

import (
	"context"
	"fmt"
)

// Account is a user identity on the remote media-server. The ID is assigned
// remotely and immutable once created.
type Account struct {
	ID            string `json:"Id"`
	Name          string `json:"Name"`
	Policy        Fields `json:"Policy,omitempty"`
	Configuration Fields `json:"Configuration,omitempty"`
}

// Catalog is a point-in-time snapshot of the remote library folders, mapping
// folder identifier to display name. It is fetched fresh per resolution
// call; staleness is the caller's risk.
type Catalog map[string]string

// Service defines the typed operations against the remote media-server API.
// Each call issues one network request with a bounded timeout and no retry.
type Service interface {
	ListLibraries(ctx context.Context) (Catalog, error)
	CreateAccount(ctx context.Context, username string) (string, error)
	SetPassword(ctx context.Context, accountID, password string) error
	GetAccount(ctx context.Context, accountID string) (Account, error)
	UpdateAccount(ctx context.Context, accountID string, patch map[string]string) (Account, error)
	SetPolicy(ctx context.Context, accountID string, policy Fields) error
	DeleteAccount(ctx context.Context, accountID string) error
	ListAccounts(ctx context.Context) ([]Account, error)
}

// RemoteError reports a non-2xx response from the remote API.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("directory: remote returned %d: %s", e.Status, e.Body)
}

// TransportError reports a connection or timeout failure before any HTTP
// status was received.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("directory: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
