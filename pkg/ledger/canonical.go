package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/inlock/fabric/pkg/types"
)

// ComputeHash returns the canonical SHA-256 of an event. The input is the
// colon-joined concatenation of asset id, action, user id, timestamp,
// references, signature and the canonical JSON form of the data map. Events
// hashed at creation must recompute to the same value after a snapshot
// round-trip, so every piece of the rendering below is deterministic.
func ComputeHash(e *types.Event) string {
	content := fmt.Sprintf("%s:%s:%s:%s:%s:%s:%s",
		e.AssetID,
		e.Action,
		e.UserID,
		formatFloat(e.Timestamp),
		strings.Join(e.References, ":"),
		e.Signature,
		canonicalJSON(e.Data),
	)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// FormatValue renders a data value for human-facing responses: strings as-is,
// everything else in canonical JSON form.
func FormatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return canonicalJSON(v)
}

// generateSignature derives the opaque content tag for a new event. The tag
// is deterministic from the user, timestamp and a random nonce; it is not a
// cryptographic signature and is never verified as one.
func generateSignature(userID string, timestamp float64) string {
	base := fmt.Sprintf("%s:%s:%d", userID, formatFloat(timestamp), rand.Intn(1000000)+1)
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// formatFloat renders a timestamp in the shortest decimal form that
// round-trips, with a ".0" suffix for integral values. Timestamps always
// hash in this form; they decode into a typed float64 field, never into a
// json.Number.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// jsonFloat renders a float the way encoding/json marshals it, so a value
// that is hashed, written to disk and decoded back as a json.Number hashes
// to the same text on reload.
func jsonFloat(f float64) string {
	raw, err := json.Marshal(f)
	if err != nil {
		return formatFloat(f)
	}
	return string(raw)
}

// canonicalJSON serializes a JSON-compatible value deterministically: object
// keys sorted lexicographically, ", " between elements, ": " after keys, and
// numbers rendered exactly as their JSON text. Values that cannot appear in
// decoded JSON fall back to encoding/json.
func canonicalJSON(v any) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		b.WriteString(encodeJSONString(val))
	case float64:
		b.WriteString(jsonFloat(val))
	case float32:
		b.WriteString(jsonFloat(float64(val)))
	case int:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case json.Number:
		// Snapshots decode numbers as json.Number; the literal text is
		// what was hashed when the event was created, so it is emitted
		// verbatim.
		b.WriteString(val.String())
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case []string:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(encodeJSONString(item))
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(encodeJSONString(k))
			b.WriteString(": ")
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	default:
		// Not reachable from decoded JSON; keep the output deterministic
		// for programmatically built values.
		raw, err := json.Marshal(val)
		if err != nil {
			b.WriteString("null")
			return
		}
		b.Write(raw)
	}
}

// encodeJSONString escapes a string the way encoding/json does, minus the
// HTML-safe escaping of <, > and &.
func encodeJSONString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	// Encode appends a newline.
	return strings.TrimRight(buf.String(), "\n")
}
