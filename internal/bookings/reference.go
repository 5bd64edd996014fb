package bookings

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Crockford's base32 alphabet: no I, L, O or U to misread over the phone.
const refAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewReference returns a reference such as TX-261020-4F7KQ2 for a booking
// made on day (in loc).
func NewReference(day time.Time, loc *time.Location) string {
	id := uuid.New()
	var sb strings.Builder
	sb.WriteString("TX-")
	sb.WriteString(day.In(loc).Format("060102"))
	sb.WriteByte('-')
	for i := 0; i < 6; i++ {
		sb.WriteByte(refAlphabet[id[i]&31])
	}
	return sb.String()
}

// NormalizeReference upper-cases a reference typed by a customer and maps
// the characters Crockford's alphabet leaves out.
func NormalizeReference(raw string) string {
	r := strings.ToUpper(strings.TrimSpace(raw))
	prefix, suffix, ok := cutSuffix(r)
	if !ok {
		return r
	}
	suffix = strings.NewReplacer("O", "0", "I", "1", "L", "1").Replace(suffix)
	return prefix + suffix
}

func cutSuffix(ref string) (string, string, bool) {
	i := strings.LastIndexByte(ref, '-')
	if i < 0 {
		return "", "", false
	}
	return ref[:i+1], ref[i+1:], true
}
