package progress

import (
	"fmt"

	"github.com/google/uuid"
)

// NewToken returns a fresh, globally unique progress token.
func NewToken() string {
	return uuid.NewString()
}

// TokenKey converts a progress token as received on the wire into the
// string key used by the Registry. Tokens may be strings or numbers;
// anything else is rejected.
func TokenKey(token interface{}) (string, bool) {
	switch v := token.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v)), true
		}
		return fmt.Sprintf("%v", v), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32:
		return fmt.Sprintf("%v", v), true
	default:
		return "", false
	}
}
