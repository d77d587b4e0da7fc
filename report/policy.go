package report

import (
	"strings"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// Policy resolves two records with the same key.
type Policy int

const (
	// KeepBest keeps the higher R². A scored record beats an unscored one;
	// ties go to the later CreatedAt, then the larger RunID.
	KeepBest Policy = iota
	// KeepLatest keeps the later CreatedAt; ties go to the larger RunID,
	// then the higher R².
	KeepLatest
)

func (p Policy) String() string {
	if p == KeepLatest {
		return "latest"
	}
	return "best"
}

// ParsePolicy parses "best" or "latest". The empty string means KeepBest.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best", "keep_best":
		return KeepBest, nil
	case "latest", "keep_latest":
		return KeepLatest, nil
	default:
		return KeepBest, errors.NewValidationError("merge_policy", "must be 'best' or 'latest'", s)
	}
}

// prefers reports whether candidate should replace current. Both policies are
// strict total orders over distinct records, so the winner of a key does not
// depend on merge order and re-adding a record is a no-op.
func (p Policy) prefers(candidate, current Record) bool {
	if p == KeepLatest {
		if c := compareTime(candidate, current); c != 0 {
			return c > 0
		}
		return compareScore(candidate, current) > 0
	}
	if c := compareScore(candidate, current); c != 0 {
		return c > 0
	}
	return compareTime(candidate, current) > 0
}

func compareScore(a, b Record) int {
	switch {
	case a.HasScore() && !b.HasScore():
		return 1
	case !a.HasScore() && b.HasScore():
		return -1
	case !a.HasScore():
		return 0
	case *a.R2 > *b.R2:
		return 1
	case *a.R2 < *b.R2:
		return -1
	}
	return 0
}

func compareTime(a, b Record) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.RunID, b.RunID)
}
