// Package cursor normalizes replication-key values to Unix seconds.
package cursor

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
	"github.com/ajitpratap0/nebula-omnivore/pkg/json"
)

// Layout is the timestamp shape the API uses for replication keys.
const Layout = "2006-01-02T15:04:05.999999Z"

var timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{1,6}Z$`)

// Normalize converts v to epoch seconds. Integers pass through, integer
// strings are parsed, and timestamps of the form YYYY-MM-DDTHH:MM:SS.ffffffZ
// are read as UTC. Everything else is an ErrorTypeInvalidCursor error.
func Normalize(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return fromUnsigned(uint64(x), v)
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return fromUnsigned(x, v)
	case json.Number:
		if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return n, nil
		}
		return 0, invalid(v)
	case string:
		return parseString(x)
	default:
		return 0, invalid(v)
	}
}

// FormatUnix renders epoch seconds in the API's timestamp layout.
func FormatUnix(sec int64) string {
	return time.Unix(sec, 0).UTC().Format("2006-01-02T15:04:05.000000Z")
}

func parseString(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if !timestampPattern.MatchString(s) {
		return 0, invalid(s)
	}
	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInvalidCursor, fmt.Sprintf("cannot parse timestamp %q", s))
	}
	return t.Unix(), nil
}

func fromUnsigned(u uint64, v interface{}) (int64, error) {
	if u > math.MaxInt64 {
		return 0, invalid(v)
	}
	return int64(u), nil
}

func invalid(v interface{}) error {
	return errors.Newf(errors.ErrorTypeInvalidCursor, "cannot normalize cursor value %v (%T)", v, v)
}
