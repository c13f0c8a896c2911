package directory

import "context"

// baselinePlayback are the capability flags forced on after every policy
// merge, regardless of their prior state. This is a post-policy floor, not
// user-configurable.
var baselinePlayback = []string{
	"EnableMediaPlayback",
	"EnableAudioPlaybackTranscoding",
	"EnableVideoPlaybackTranscoding",
	"EnablePlaybackRemuxing",
	"EnableContentDownloading",
	"EnableRemoteAccess",
}

// ApplyLibraryAccess merges a resolved library grant into the account's
// current policy and writes the full merged policy back. An empty
// libraryIDs set grants access to every folder. Errors surface as-is; no
// partial state is persisted here.
func ApplyLibraryAccess(ctx context.Context, svc Service, accountID string, libraryIDs []string) error {
	acct, err := svc.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	policy := acct.Policy.Clone()
	if policy == nil {
		policy = Fields{}
	}
	policy["EnableAllFolders"] = BoolValue(len(libraryIDs) == 0)
	policy["EnabledFolders"] = ListValue(libraryIDs)
	for _, flag := range baselinePlayback {
		policy[flag] = BoolValue(true)
	}

	return svc.SetPolicy(ctx, accountID, policy)
}
