package types

// Verdict is a tri-state check result: determined-true, determined-false, or
// absent when the inputs needed to decide are missing. Absent is distinct from
// false; false means the check ran and found no change.
type Verdict int

// Verdict states, zero value is absent.
const (
	VerdictAbsent Verdict = iota
	VerdictFalse
	VerdictTrue
)

// Of converts a determined boolean into a Verdict.
func Of(v bool) Verdict {
	if v {
		return VerdictTrue
	}

	return VerdictFalse
}

// Known reports whether the verdict is determined.
func (v Verdict) Known() bool {
	return v != VerdictAbsent
}

// True reports whether the verdict is determined-true.
func (v Verdict) True() bool {
	return v == VerdictTrue
}

// String renders the verdict for table output, "-" for absent.
func (v Verdict) String() string {
	switch v {
	case VerdictTrue:
		return "yes"
	case VerdictFalse:
		return "no"
	default:
		return "-"
	}
}

// MarshalJSON encodes absent verdicts as JSON null so consumers can tell
// "cannot be determined" apart from "determined to be unchanged".
func (v Verdict) MarshalJSON() ([]byte, error) {
	switch v {
	case VerdictTrue:
		return []byte("true"), nil
	case VerdictFalse:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}
