package provision

import (
	"context"

	"joinarr.org/internal/ids"
	"joinarr.org/internal/obs"
)

// placeholderValue fills fields the remote listing cannot supply for
// sync-created records.
const placeholderValue = "empty"

// Sync reconciles the full local user set against the full remote account
// set and returns the resulting local set. Additions and deletions commit
// as two separate transactions, additions first: a truncated remote listing
// must not wipe valid local records before the additive pass has run.
//
// Passes are serialized internally: the scheduled worker and the HTTP
// triggers may all call Sync, and overlapping passes would double-create
// placeholders or delete records a newer pass just added.
func (s *Service) Sync(ctx context.Context) ([]*User, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	accounts, err := s.dir.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	remote := make(map[string]bool, len(accounts))
	for _, acct := range accounts {
		remote[acct.ID] = true
	}

	locals, err := s.store.Users(ctx).List(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(locals))
	for _, u := range locals {
		known[u.RemoteID] = true
	}

	// Phase 1: placeholder records for remote accounts with no local mirror.
	var added int
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	for _, acct := range accounts {
		if known[acct.ID] {
			continue
		}
		u := &User{
			ID:        ids.New(),
			Username:  acct.Name,
			Email:     placeholderValue,
			Password:  placeholderValue,
			RemoteID:  acct.ID,
			Code:      placeholderValue,
			CreatedAt: s.now(),
		}
		if err := tx.Users().Create(ctx, u); err != nil {
			return nil, err
		}
		added++
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	// Phase 2: drop local records whose remote account disappeared.
	var removed int
	tx2, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx2.Rollback() }()
	for _, u := range locals {
		if remote[u.RemoteID] {
			continue
		}
		if err := tx2.Users().Delete(ctx, u.ID); err != nil {
			return nil, err
		}
		removed++
	}
	if err := tx2.Commit(); err != nil {
		return nil, err
	}

	out, err := s.store.Users(ctx).List(ctx)
	if err != nil {
		return nil, err
	}
	obs.SetSyncedUsers(len(out))
	obs.Info("directory sync complete", map[string]any{
		"remote": len(accounts), "local": len(out), "added": added, "removed": removed,
	})
	return out, nil
}

// ScanLibraries refreshes the local library table from the remote catalog.
// New folders come in enabled; existing rows keep their enabled flag and
// only pick up name changes.
func (s *Service) ScanLibraries(ctx context.Context) ([]*Library, error) {
	catalog, err := s.dir.ListLibraries(ctx)
	if err != nil {
		return nil, err
	}
	libs := s.store.Libraries(ctx)
	for externalID, name := range catalog {
		lib := &Library{ExternalID: externalID, Name: name, Enabled: true}
		if err := libs.Upsert(ctx, lib); err != nil {
			return nil, err
		}
	}
	return libs.List(ctx)
}
