package compiler

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	// embedded zone database for time zone validation
	_ "time/tzdata"
)

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	zoneRe  = regexp.MustCompile(`^[A-Za-z0-9_/+\-]+$`)
)

// literal renders a Go value as an inline SQL literal.
func literal(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return quote(x), nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", fmt.Errorf("non-finite number")
		}
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case time.Time:
		return "DATE " + quote(x.Format(time.DateOnly)), nil
	case nil:
		return "", fmt.Errorf("null value (use is_null)")
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// quote wraps s in single quotes, doubling embedded quotes.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func validZone(tz string) error {
	if !zoneRe.MatchString(tz) {
		return fmt.Errorf("invalid time zone %q", tz)
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("unknown time zone %q", tz)
	}
	return nil
}
