// Package corpus models the named splits of an archived media corpus and the
// run configuration for repackaging them.
package corpus

import "strings"

// ShareAlikeMarker is the substring in an internal split name that marks a
// share-alike licensed subset.
const ShareAlikeMarker = "by_sa"

// Split pairs a split's internal name with its canonical display name.
type Split struct {
	Name        string
	DisplayName string
}

// RenameSplit derives the canonical display name from an internal split name:
// the text after the last underscore, with an "_sa" suffix when the internal
// name carries the share-alike marker. "cc_by_sa_dirty" becomes "dirty_sa".
func RenameSplit(name string) string {
	shareAlike := strings.Contains(name, ShareAlikeMarker)
	if i := strings.LastIndex(name, "_"); i >= 0 {
		name = name[i+1:]
	}
	if shareAlike {
		return name + "_sa"
	}
	return name
}
