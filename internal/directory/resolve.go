package directory

import "joinarr.org/internal/obs"

// Resolve maps caller-supplied library references to the canonical folder
// identifiers known to the remote system. Each reference is either already
// an identifier (direct match wins) or a display name to reverse-look-up.
// Unresolvable references are logged and dropped, never an error; the
// result is de-duplicated. An empty result downstream means "grant access
// to all libraries".
func Resolve(refs []string, catalog Catalog) []string {
	byName := make(map[string]string, len(catalog))
	for id, name := range catalog {
		byName[name] = id
	}

	seen := make(map[string]bool, len(refs))
	resolved := make([]string, 0, len(refs))
	for _, ref := range refs {
		id, ok := "", false
		if _, direct := catalog[ref]; direct {
			id, ok = ref, true
		} else if byID, named := byName[ref]; named {
			id, ok = byID, true
		}
		if !ok {
			obs.Warn("unresolvable library reference", map[string]any{"ref": ref})
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		resolved = append(resolved, id)
	}
	return resolved
}
