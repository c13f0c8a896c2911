package provision

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"joinarr.org/internal/directory"
	"joinarr.org/internal/ids"
	"joinarr.org/internal/obs"
)

var emailRe = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

const (
	// genericJoinError is the only failure detail users ever see; the real
	// cause goes to the log.
	genericJoinError = "An unexpected error occurred during user creation."

	// passwordMarker is stored in the local password column. Local records
	// never authenticate anyone.
	passwordMarker = "emby-user"
)

// Service orchestrates account provisioning against the remote directory
// and keeps the local records consistent with it.
type Service struct {
	store    Store
	dir      directory.Service
	invites  InviteChecker
	notifier Notifier
	now      func() time.Time

	// syncMu serializes Sync passes; overlapping passes could double-create
	// placeholders or delete records a newer pass just added.
	syncMu sync.Mutex

	// compensate controls whether a remote account created by a join that
	// later fails is deleted again. Off by default: the local transaction
	// rolls back but the remote account stays behind.
	compensate bool
}

// Option configures Service behavior.
type Option func(*Service)

// WithNotifier sets the notification sink for successful joins.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCompensatingDelete enables deletion of the freshly created remote
// account when a later provisioning step fails.
func WithCompensatingDelete(enabled bool) Option {
	return func(s *Service) { s.compensate = enabled }
}

// New constructs the provisioning service.
func New(store Store, dir directory.Service, invites InviteChecker, opts ...Option) *Service {
	s := &Service{
		store:   store,
		dir:     dir,
		invites: invites,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// JoinRequest carries the caller-supplied join form.
type JoinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
	Email    string `json:"email"`
	Code     string `json:"code"`
}

// Join provisions a new account for an invitation code. Validation failures
// return their specific message without any remote call; once the remote
// account exists, every later failure returns the generic message and rolls
// back local state only.
func (s *Service) Join(ctx context.Context, req JoinRequest) (bool, string) {
	// Normalized once here so validation and invitation consumption see the
	// same code string; the store matches codes exactly.
	req.Code = strings.TrimSpace(req.Code)

	if msg := s.validate(ctx, req); msg != "" {
		obs.CountJoin("rejected")
		return false, msg
	}

	remoteID, err := s.dir.CreateAccount(ctx, req.Username)
	if err != nil {
		obs.Error("create remote account failed", map[string]any{
			"username": req.Username, "error": err.Error(),
		})
		obs.CountJoin("failed")
		return false, genericJoinError
	}

	// A password-set failure never aborts provisioning: the account exists
	// and the user can reset the credential later.
	if err := s.dir.SetPassword(ctx, remoteID, req.Password); err != nil {
		obs.Error("set password failed, continuing", map[string]any{
			"username": req.Username, "remote_id": remoteID, "error": err.Error(),
		})
	}

	ok, msg := s.finishJoin(ctx, req, remoteID)
	if !ok && s.compensate {
		if err := s.dir.DeleteAccount(ctx, remoteID); err != nil {
			obs.Error("compensating remote delete failed", map[string]any{
				"remote_id": remoteID, "error": err.Error(),
			})
		}
	}
	if ok {
		obs.CountJoin("ok")
	} else {
		obs.CountJoin("failed")
	}
	return ok, msg
}

// validate returns a user-facing message, or "" when the request may
// proceed. The duplicate check is a point-in-time read with no lock; a
// concurrent join for the same name can still race past it.
func (s *Service) validate(ctx context.Context, req JoinRequest) string {
	if !emailRe.MatchString(req.Email) {
		return "Invalid e-mail address."
	}
	if n := len(req.Password); n < 8 || n > 20 {
		return "Password must be 8-20 characters."
	}
	if req.Password != req.Confirm {
		return "Passwords do not match."
	}
	if ok, msg := s.invites.IsValid(ctx, req.Code); !ok {
		return msg
	}
	existing, err := s.store.Users(ctx).FindByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		obs.Error("duplicate check failed", map[string]any{"error": err.Error()})
		return genericJoinError
	}
	if existing != nil {
		return "User or e-mail already exists."
	}
	return ""
}

// finishJoin runs the steps after remote account creation: library access,
// local record, invitation consumption, notification.
func (s *Service) finishJoin(ctx context.Context, req JoinRequest, remoteID string) (bool, string) {
	inv, err := s.store.Invitations(ctx).FindByCode(ctx, req.Code)
	if err != nil {
		obs.Error("load invitation failed", map[string]any{"code": req.Code, "error": err.Error()})
		return false, genericJoinError
	}

	scope := inv.Libraries
	if len(scope) == 0 {
		enabled, err := s.store.Libraries(ctx).ListEnabled(ctx)
		if err != nil {
			obs.Error("list enabled libraries failed", map[string]any{"error": err.Error()})
			return false, genericJoinError
		}
		for _, lib := range enabled {
			scope = append(scope, lib.ExternalID)
		}
	}

	catalog, err := s.dir.ListLibraries(ctx)
	if err != nil {
		obs.Error("fetch library catalog failed", map[string]any{"error": err.Error()})
		return false, genericJoinError
	}
	resolved := directory.Resolve(scope, catalog)
	if err := directory.ApplyLibraryAccess(ctx, s.dir, remoteID, resolved); err != nil {
		obs.Error("apply library access failed", map[string]any{
			"remote_id": remoteID, "error": err.Error(),
		})
		return false, genericJoinError
	}

	now := s.now()
	var expires *time.Time
	if inv.DurationDays > 0 {
		e := now.Add(time.Duration(inv.DurationDays) * 24 * time.Hour)
		expires = &e
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		obs.Error("begin transaction failed", map[string]any{"error": err.Error()})
		return false, genericJoinError
	}
	defer func() { _ = tx.Rollback() }()

	user := &User{
		ID:        ids.New(),
		Username:  req.Username,
		Email:     req.Email,
		Password:  passwordMarker,
		RemoteID:  remoteID,
		Code:      req.Code,
		Expires:   expires,
		CreatedAt: now,
	}
	if err := tx.Users().Create(ctx, user); err != nil {
		obs.Error("create local user failed", map[string]any{
			"username": req.Username, "error": err.Error(),
		})
		// A concurrent join can slip past the duplicate pre-check; the
		// unique constraint catches it here.
		if errors.Is(err, ErrAlreadyExists) {
			return false, "User or e-mail already exists."
		}
		return false, genericJoinError
	}

	used := true
	if inv.Unlimited {
		used = inv.Used
	}
	if err := tx.Invitations().MarkUsed(ctx, inv.Code, user.ID, now, used); err != nil {
		obs.Error("mark invitation used failed", map[string]any{
			"code": inv.Code, "error": err.Error(),
		})
		return false, genericJoinError
	}
	if err := tx.Commit(); err != nil {
		obs.Error("commit join transaction failed", map[string]any{"error": err.Error()})
		return false, genericJoinError
	}

	if s.notifier != nil {
		body := fmt.Sprintf("User %s has joined your media server! 🎉", req.Username)
		if err := s.notifier.Notify(ctx, "New User", body, "tada"); err != nil {
			obs.Warn("notification failed", map[string]any{"error": err.Error()})
		}
	}
	obs.Info("user joined", map[string]any{
		"username": req.Username, "remote_id": remoteID, "code": req.Code,
	})
	return true, ""
}
