package job

import (
	"github.com/Masterminds/semver/v3"
)

// Triple is a (major, minor, patch) version.
type Triple struct {
	Major, Minor, Patch uint64
}

// Less compares triples lexicographically.
func (t Triple) Less(o Triple) bool {
	if t.Major != o.Major {
		return t.Major < o.Major
	}
	if t.Minor != o.Minor {
		return t.Minor < o.Minor
	}
	return t.Patch < o.Patch
}

// ParseVersion parses a dotted numeric version. Missing components default to
// 0, so "1" is (1,0,0). Non-numeric input, such as a branch name, fails.
func ParseVersion(s string) (Triple, bool) {
	if s == "" {
		return Triple{}, false
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return Triple{}, false
	}
	return Triple{Major: v.Major(), Minor: v.Minor(), Patch: v.Patch()}, true
}

// VersionSmaller reports whether version s is below engine. Unparsable s
// counts as (0,0,0).
func VersionSmaller(s string, engine Triple) bool {
	v, _ := ParseVersion(s)
	return v.Less(engine)
}

// Verdict is the outcome of the version gate.
type Verdict int

const (
	// Compatible jobs are executed.
	Compatible Verdict = iota
	// Stale jobs belong to a schema epoch this engine no longer runs; they are dropped.
	Stale
	// TooNew jobs are released for a newer engine.
	TooNew
)

func (v Verdict) String() string {
	switch v {
	case Stale:
		return "stale"
	case TooNew:
		return "too-new"
	default:
		return "compatible"
	}
}

// CheckVersion gates a job version against the engine version. The stale
// check runs first: a job more than one major behind is stale. Otherwise a job
// greater than the engine is too new. An unparsable engine version (a
// development build) gates nothing.
func CheckVersion(jobVersion, engineVersion string) Verdict {
	engine, ok := ParseVersion(engineVersion)
	if !ok {
		return Compatible
	}
	jv, _ := ParseVersion(jobVersion)

	if jv.Major+1 < engine.Major {
		return Stale
	}
	if engine.Less(jv) {
		return TooNew
	}
	return Compatible
}
