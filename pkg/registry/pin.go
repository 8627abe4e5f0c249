package registry

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/kamitools/kami/pkg/types"
)

// Pin bookkeeping. A pinned tool is excluded from bulk updates; the pin
// itself is a semver constraint recorded on the installed record.

// UpdateAllowed reports whether a bulk update may move an installed tool
// to candidate. Unpinned tools accept any candidate; pinned tools accept
// only versions that keep the pin satisfied.
func UpdateAllowed(tool types.Tool, candidate types.ToolVersion) (bool, error) {
	if !tool.Pinned() {
		return true, nil
	}
	// A bare version pin ("1.2.0") acts as an exact-match constraint;
	// range pins ("~1.2") are honoured as written.
	constraint, err := semver.NewConstraint(tool.PinnedVersion)
	if err != nil {
		return false, fmt.Errorf("invalid pinned_version %q: %w", tool.PinnedVersion, err)
	}
	return constraint.Check(candidate.Semver()), nil
}
