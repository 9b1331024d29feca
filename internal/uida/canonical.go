// Package uida computes the canonical identity of a structural key: a
// deterministic byte serialization (RFC 8785 style canonical JSON), its
// base64url encoding and a 32-byte SHA-256 hash. Two key-maps that are equal
// up to object-key ordering produce byte-identical output in all three forms.
package uida

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/SakenW/transhub/internal/domain"
)

// maxSafeInt is the largest integer representable exactly in an I-JSON
// number (2^53 - 1).
const maxSafeInt = 1<<53 - 1

// Canonicalize validates and serializes the key-map. Values are restricted to
// strings, integers, booleans, null and nested string-keyed objects/arrays;
// floating-point values are rejected with a *domain.CanonicalizationError
// naming the offending path.
func Canonicalize(keys map[string]any) (canonical []byte, b64 string, hash [32]byte, err error) {
	if keys == nil {
		return nil, "", hash, &domain.CanonicalizationError{Path: "$", Reason: "keys must not be nil"}
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, keys, "$"); err != nil {
		return nil, "", hash, err
	}
	canonical = buf.Bytes()
	hash = sha256.Sum256(canonical)
	b64 = base64.RawURLEncoding.EncodeToString(canonical)
	return canonical, b64, hash, nil
}

// CanonicalJSON serializes any I-JSON-compatible value with the same rules as
// Canonicalize, without hashing. Used for reuse-hash construction.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v, "$"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any, path string) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeString(buf, t)
	case int:
		return writeInt(buf, int64(t), path)
	case int8:
		return writeInt(buf, int64(t), path)
	case int16:
		return writeInt(buf, int64(t), path)
	case int32:
		return writeInt(buf, int64(t), path)
	case int64:
		return writeInt(buf, t, path)
	case uint:
		return writeUint(buf, uint64(t), path)
	case uint8:
		return writeUint(buf, uint64(t), path)
	case uint16:
		return writeUint(buf, uint64(t), path)
	case uint32:
		return writeUint(buf, uint64(t), path)
	case uint64:
		return writeUint(buf, t, path)
	case float32:
		return &domain.CanonicalizationError{Path: path, Reason: "floating-point values are not canonicalizable"}
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return &domain.CanonicalizationError{Path: path, Reason: "NaN and Infinity are not canonicalizable"}
		}
		return &domain.CanonicalizationError{Path: path, Reason: "floating-point values are not canonicalizable"}
	case json.Number:
		s := t.String()
		if strings.ContainsAny(s, ".eE") {
			return &domain.CanonicalizationError{Path: path, Reason: "non-integer number " + s}
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return &domain.CanonicalizationError{Path: path, Reason: "unparseable number " + s}
		}
		return writeInt(buf, n, path)
	case map[string]any:
		return writeObject(buf, t, path)
	case []any:
		buf.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, el, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return &domain.CanonicalizationError{Path: path, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
	return nil
}

func writeObject(buf *bytes.Buffer, m map[string]any, path string) error {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return lessUTF16(names[i], names[j]) })
	buf.WriteByte('{')
	for i, k := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k)
		buf.WriteByte(':')
		if err := writeValue(buf, m[k], path+"."+k); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeInt(buf *bytes.Buffer, n int64, path string) error {
	if n > maxSafeInt || n < -maxSafeInt {
		return &domain.CanonicalizationError{Path: path, Reason: "integer outside I-JSON safe range"}
	}
	buf.WriteString(strconv.FormatInt(n, 10))
	return nil
}

func writeUint(buf *bytes.Buffer, n uint64, path string) error {
	if n > maxSafeInt {
		return &domain.CanonicalizationError{Path: path, Reason: "integer outside I-JSON safe range"}
	}
	buf.WriteString(strconv.FormatUint(n, 10))
	return nil
}

// writeString emits a JSON string with the fixed escaping RFC 8785 requires:
// two-character escapes where defined, \u00XX for remaining control
// characters, everything else literal UTF-8.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// lessUTF16 orders strings by their UTF-16 code units, the sort order RFC
// 8785 mandates for object members. It differs from byte order only for
// supplementary-plane characters.
func lessUTF16(a, b string) bool {
	if isASCII(a) && isASCII(b) {
		return a < b
	}
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
