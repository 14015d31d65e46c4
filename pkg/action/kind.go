package action

import "regexp"

// Kind selects the artwork of a button.
type Kind uint8

const (
	// KindOn is a channel or logic on/off switch.
	KindOn Kind = iota

	// KindPFL is a pre-fader listen switch.
	KindPFL
)

var (
	logicPattern = regexp.MustCompile(`^/?control/logics/\d+$`)
	pflPattern   = regexp.MustCompile(`pfl\d+$`)
)

// DetectKind derives the button kind from a path. Logic paths are on
// switches, paths ending in pfl<N> are PFL switches, everything else is
// treated as an on switch.
func DetectKind(p string) Kind {
	if logicPattern.MatchString(p) {
		return KindOn
	}
	if pflPattern.MatchString(p) {
		return KindPFL
	}
	return KindOn
}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindOn:
		return "on"
	case KindPFL:
		return "pfl"
	default:
		return "unknown"
	}
}
