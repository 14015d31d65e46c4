package action

import (
	"strconv"

	"github.com/dhd-bridge/dhd-go/pkg/router"
)

// Client is the part of the control-channel client used by actions.
type Client interface {
	Register(p string, h router.Handle) error
	Unregister(p string, h router.Handle) bool
	RequestSet(p string, value any) error
}

// toBool interprets a device value as a switch state.
func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case float64:
		return x != 0, true
	case int:
		return x != 0, true
	case string:
		b, err := strconv.ParseBool(x)
		return b, err == nil
	default:
		return false, false
	}
}

// toFloat interprets a device value as a number.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
