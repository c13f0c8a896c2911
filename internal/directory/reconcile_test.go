package directory

import (
	"context"
	"errors"
	"testing"
)

// fakeService records policy writes and serves a canned account.
type fakeService struct {
	account   Account
	getErr    error
	setErr    error
	setCalled bool
	gotPolicy Fields
}

func (f *fakeService) ListLibraries(context.Context) (Catalog, error) { return nil, nil }
func (f *fakeService) CreateAccount(context.Context, string) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeService) SetPassword(context.Context, string, string) error { return nil }
func (f *fakeService) GetAccount(context.Context, string) (Account, error) {
	return f.account, f.getErr
}
func (f *fakeService) UpdateAccount(context.Context, string, map[string]string) (Account, error) {
	return Account{}, errors.New("not implemented")
}
func (f *fakeService) SetPolicy(_ context.Context, _ string, policy Fields) error {
	f.setCalled = true
	f.gotPolicy = policy
	return f.setErr
}
func (f *fakeService) DeleteAccount(context.Context, string) error { return nil }
func (f *fakeService) ListAccounts(context.Context) ([]Account, error) {
	return nil, errors.New("not implemented")
}

func TestApplyLibraryAccessSpecificFolders(t *testing.T) {
	t.Parallel()

	svc := &fakeService{account: Account{
		ID: "u1",
		Policy: Fields{
			"EnableAllFolders":    BoolValue(true),
			"EnabledFolders":      ListValue([]string{"old"}),
			"EnableMediaPlayback": BoolValue(false),
			"IsAdministrator":     BoolValue(true),
			"EnableRemoteAccess":  BoolValue(false),
			"MaxParentalRating":   IntValue(10),
		},
	}}

	if err := ApplyLibraryAccess(context.Background(), svc, "u1", []string{"lib1", "lib2"}); err != nil {
		t.Fatalf("ApplyLibraryAccess: %v", err)
	}
	if !svc.setCalled {
		t.Fatal("SetPolicy not called")
	}

	p := svc.gotPolicy
	if p["EnableAllFolders"].Bool {
		t.Fatal("EnableAllFolders should be false for a specific grant")
	}
	if got := p["EnabledFolders"].List; len(got) != 2 || got[0] != "lib1" || got[1] != "lib2" {
		t.Fatalf("EnabledFolders = %v", got)
	}
	// Untouched fields survive the merge.
	if !p["IsAdministrator"].Bool {
		t.Fatal("IsAdministrator lost in merge")
	}
	if p["MaxParentalRating"].Int != 10 {
		t.Fatal("MaxParentalRating lost in merge")
	}
}

func TestApplyLibraryAccessEmptySetGrantsAll(t *testing.T) {
	t.Parallel()

	svc := &fakeService{account: Account{ID: "u1", Policy: Fields{}}}

	if err := ApplyLibraryAccess(context.Background(), svc, "u1", nil); err != nil {
		t.Fatalf("ApplyLibraryAccess: %v", err)
	}
	if !svc.gotPolicy["EnableAllFolders"].Bool {
		t.Fatal("empty resolved set must grant all folders")
	}
	if got := svc.gotPolicy["EnabledFolders"].List; len(got) != 0 {
		t.Fatalf("EnabledFolders = %v, want empty", got)
	}
}

// The playback baseline is forced true regardless of prior state or
// absence from the policy.
func TestApplyLibraryAccessForcesPlaybackBaseline(t *testing.T) {
	t.Parallel()

	svc := &fakeService{account: Account{
		ID: "u1",
		Policy: Fields{
			"EnableMediaPlayback":            BoolValue(false),
			"EnableAudioPlaybackTranscoding": BoolValue(false),
			// the remaining four flags are absent on purpose
		},
	}}

	if err := ApplyLibraryAccess(context.Background(), svc, "u1", []string{"lib1"}); err != nil {
		t.Fatalf("ApplyLibraryAccess: %v", err)
	}
	for _, flag := range baselinePlayback {
		v, ok := svc.gotPolicy[flag]
		if !ok || v.Kind != KindBool || !v.Bool {
			t.Fatalf("baseline flag %s not forced true: %+v", flag, v)
		}
	}
}

func TestApplyLibraryAccessPropagatesErrors(t *testing.T) {
	t.Parallel()

	wantErr := &RemoteError{Status: 500, Body: "boom"}
	svc := &fakeService{getErr: wantErr}
	err := ApplyLibraryAccess(context.Background(), svc, "u1", nil)
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if svc.setCalled {
		t.Fatal("SetPolicy called after fetch failure")
	}
}
