// Package invites implements the invitation validity rules over the local
// store.
package invites

import (
	"context"
	"errors"
	"time"

	"joinarr.org/internal/obs"
	"joinarr.org/internal/provision"
)

// Checker validates invitation codes against the store.
type Checker struct {
	store provision.Store
	now   func() time.Time
}

var _ provision.InviteChecker = (*Checker)(nil)

// NewChecker constructs a Checker. A nil clock defaults to UTC now.
func NewChecker(store provision.Store, now func() time.Time) *Checker {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Checker{store: store, now: now}
}

// IsValid reports whether the code may be redeemed, with a user-facing
// reason when it may not. Codes match exactly; callers normalize
// surrounding whitespace before validating. Reusable invitations stay
// valid after use.
func (c *Checker) IsValid(ctx context.Context, code string) (bool, string) {
	if code == "" {
		return false, "Invalid invitation code."
	}
	inv, err := c.store.Invitations(ctx).FindByCode(ctx, code)
	if errors.Is(err, provision.ErrNotFound) {
		return false, "Invalid invitation code."
	}
	if err != nil {
		obs.Error("invitation lookup failed", map[string]any{"code": code, "error": err.Error()})
		return false, "Invalid invitation code."
	}
	if inv.Used && !inv.Unlimited {
		return false, "Invitation code already used."
	}
	if inv.Expires != nil && inv.Expires.Before(c.now()) {
		return false, "Invitation code expired."
	}
	return true, ""
}
