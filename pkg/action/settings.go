package action

import (
	"errors"
	"fmt"

	"github.com/dhd-bridge/dhd-go/pkg/path"
)

// Settings errors.
var (
	ErrNoPath      = errors.New("no path set in settings")
	ErrUnknownType = errors.New("unknown action type")
)

// Type is an action type.
type Type string

const (
	TypeButton Type = "button"
	TypeDial   Type = "dial"
)

// Dial defaults.
const (
	DefaultDialMin  = 0
	DefaultDialMax  = 100
	DefaultDialStep = 1
)

// Settings configure one action instance.
type Settings struct {
	// Path is the device node the action addresses.
	Path string `yaml:"path" json:"path"`

	// Type is the action type (default: button).
	Type Type `yaml:"type,omitempty" json:"type,omitempty"`

	// Dial range and behaviour. Ignored for buttons.
	Min     float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max     float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Step    float64 `yaml:"step,omitempty" json:"step,omitempty"`
	Default float64 `yaml:"default,omitempty" json:"default,omitempty"`
}

// Normalized returns s with a normalized path and defaults applied.
func (s Settings) Normalized() Settings {
	s.Path = path.Normalize(s.Path)
	if s.Type == "" {
		s.Type = TypeButton
	}
	if s.Type == TypeDial {
		if s.Max <= s.Min {
			s.Min, s.Max = DefaultDialMin, DefaultDialMax
		}
		if s.Step <= 0 {
			s.Step = DefaultDialStep
		}
		s.Default = clamp(s.Default, s.Min, s.Max)
	}
	return s
}

// Validate checks that the settings can drive an action.
func (s Settings) Validate() error {
	s = s.Normalized()
	if s.Path == "" {
		return ErrNoPath
	}
	switch s.Type {
	case TypeButton, TypeDial:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, string(s.Type))
	}
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
