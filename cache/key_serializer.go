package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// Keyer is implemented by arguments that render their own canonical key.
type Keyer interface {
	CacheKey() string
}

type defaultKeySerializer struct{}

// NewDefaultKeySerializer returns the serializer used by the read path.
//
// Arguments are rendered as follows: a Keyer by its CacheKey, strings and
// scalars verbatim, string slices as their length plus an xxhash digest of
// the elements in order. Anything else falls back to its type and %v form.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

func (s *defaultKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, method)
	for _, arg := range args {
		parts = append(parts, serializeValue(arg))
	}
	return strings.Join(parts, KeySeparator)
}

func serializeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case Keyer:
		return val.CacheKey()
	case string:
		return val
	case []string:
		if val == nil {
			return "strings:nil"
		}
		return "strings[" + strconv.Itoa(len(val)) + "]:" + Digest(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%T:%v", val, val)
	}
}

// Digest hashes parts, in order, into a short hex string.
func Digest(parts []string) string {
	h := xxhash.New()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.WriteString("\x00")
		}
		_, _ = h.WriteString(p)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
