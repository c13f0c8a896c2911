package provision

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"joinarr.org/internal/directory"
)

func remoteIDs(users []*User) []string {
	var out []string
	for _, u := range users {
		out = append(out, u.RemoteID)
	}
	sort.Strings(out)
	return out
}

func TestSyncReconcilesLocalSet(t *testing.T) {
	store := newMemStore()
	store.users = []*User{
		{ID: "u1", Username: "alice", RemoteID: "A"},
		{ID: "u2", Username: "carol", RemoteID: "C"},
	}
	dir := newFakeDir()
	dir.accounts = []directory.Account{
		{ID: "A", Name: "alice"},
		{ID: "B", Name: "bob"},
	}
	svc := newTestService(store, dir)

	users, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	got := remoteIDs(users)
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("local set = %v, want [A B]", got)
	}

	// The record for B is a placeholder built from the remote listing.
	var b *User
	for _, u := range users {
		if u.RemoteID == "B" {
			b = u
		}
	}
	if b == nil {
		t.Fatal("no record for remote account B")
	}
	if b.Username != "bob" {
		t.Fatalf("Username = %q, want remote account name", b.Username)
	}
	if b.Email != placeholderValue || b.Password != placeholderValue || b.Code != placeholderValue {
		t.Fatalf("placeholder fields = %q/%q/%q", b.Email, b.Password, b.Code)
	}
	if b.ID == "" {
		t.Fatal("placeholder record needs a fresh id")
	}

	// The pre-existing record for A is untouched.
	for _, u := range users {
		if u.RemoteID == "A" && u.ID != "u1" {
			t.Fatalf("record for A was recreated: %+v", u)
		}
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	store := newMemStore()
	dir := newFakeDir()
	dir.accounts = []directory.Account{{ID: "A", Name: "alice"}, {ID: "B", Name: "bob"}}
	svc := newTestService(store, dir)

	first, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	second, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("sizes = %d, %d", len(first), len(second))
	}
	firstIDs := map[string]bool{}
	for _, u := range first {
		firstIDs[u.ID] = true
	}
	for _, u := range second {
		if !firstIDs[u.ID] {
			t.Fatalf("second run created new record %+v", u)
		}
	}
}

func TestSyncSerializesConcurrentCalls(t *testing.T) {
	store := newMemStore()
	dir := newFakeDir()
	dir.accounts = []directory.Account{{ID: "A", Name: "alice"}, {ID: "B", Name: "bob"}}
	svc := newTestService(store, dir)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Sync(context.Background()); err != nil {
				t.Errorf("Sync: %v", err)
			}
		}()
	}
	wg.Wait()

	users, err := store.Users(context.Background()).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("local set has %d records, want 2", len(users))
	}
	seen := map[string]bool{}
	for _, u := range users {
		if seen[u.RemoteID] {
			t.Fatalf("duplicate record for remote account %s", u.RemoteID)
		}
		seen[u.RemoteID] = true
	}
}

func TestSyncListFailureLeavesLocalsAlone(t *testing.T) {
	store := newMemStore()
	store.users = []*User{{ID: "u1", Username: "alice", RemoteID: "A"}}
	dir := newFakeDir()
	dir.accountsErr = &directory.TransportError{Op: "GET /Users", Err: errors.New("refused")}
	svc := newTestService(store, dir)

	if _, err := svc.Sync(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(store.users) != 1 {
		t.Fatal("local records must not change when the listing fails")
	}
	if store.begun != 0 {
		t.Fatal("no transaction should have been opened")
	}
}

func TestScanLibraries(t *testing.T) {
	store := newMemStore()
	store.libs = []*Library{{ID: "1", ExternalID: "lib1", Name: "Old Name", Enabled: false}}
	dir := newFakeDir()
	dir.catalog = directory.Catalog{"lib1": "Movies", "lib2": "Shows"}
	svc := newTestService(store, dir)

	libs, err := svc.ScanLibraries(context.Background())
	if err != nil {
		t.Fatalf("ScanLibraries: %v", err)
	}
	if len(libs) != 2 {
		t.Fatalf("got %d libraries", len(libs))
	}
	byExternal := map[string]*Library{}
	for _, lib := range libs {
		byExternal[lib.ExternalID] = lib
	}
	if byExternal["lib1"].Name != "Movies" {
		t.Fatalf("name not refreshed: %q", byExternal["lib1"].Name)
	}
	if byExternal["lib1"].Enabled {
		t.Fatal("a rescan must not re-enable a disabled library")
	}
	if !byExternal["lib2"].Enabled {
		t.Fatal("new libraries come in enabled")
	}
}
