// Package uuidcodec converts between the two textual encodings of the
// 128-bit identifiers used as node ids and cross-file reference keys.
//
// The canonical form is the usual 8-4-4-4-12 lower-case hex layout. The
// compact form is an underscore followed by the 16 bytes encoded with the
// URL-safe base64 alphabet (A-Z a-z 0-9 - _) and the padding stripped,
// which is what Ecore-generated XMI files carry in xmi:id attributes.
package uuidcodec

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind is the detected encoding of an identifier string.
type Kind int

const (
	Unknown Kind = iota
	Canonical
	Compact
)

func (k Kind) String() string {
	switch k {
	case Canonical:
		return "canonical"
	case Compact:
		return "compact"
	default:
		return "unknown"
	}
}

const (
	compactMarker = "_"
	compactLen    = 22
	canonicalLen  = 32
)

// Strict rejects non-zero trailing bits, so each id has one compact form.
var compactEncoding = base64.RawURLEncoding.Strict()

// ConversionError reports an identifier that could not be converted.
type ConversionError struct {
	Input  string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("uuid conversion %q: %s", e.Input, e.Reason)
}

// Generate returns a fresh random identifier in both encodings.
func Generate() (canonical, compact string) {
	u := uuid.New()
	return u.String(), encodeCompact(u)
}

// NewID returns a fresh identifier in compact form, ready for xmi:id.
func NewID() string {
	_, c := Generate()
	return c
}

// DetectKind reports which encoding s uses.
func DetectKind(s string) Kind {
	if len(strings.ReplaceAll(s, "-", "")) == canonicalLen {
		return Canonical
	}
	if compactBody(s) != "" {
		return Compact
	}
	return Unknown
}

// compactBody returns the 22 base64 characters of a compact id, or "" when
// s is not shaped like one.
func compactBody(s string) string {
	t := strings.TrimRight(s, "=")
	if len(t) == compactLen {
		return t
	}
	if len(t) == compactLen+1 && strings.HasPrefix(t, compactMarker) {
		return t[1:]
	}
	return ""
}

// ToCompact converts a canonical identifier to its compact form.
func ToCompact(canonical string) (string, error) {
	u, err := uuid.Parse(canonical)
	if err != nil {
		return "", &ConversionError{Input: canonical, Reason: err.Error()}
	}
	return encodeCompact(u), nil
}

// ToCanonical converts a compact identifier to its canonical form.
func ToCanonical(compact string) (string, error) {
	body := compactBody(compact)
	if body == "" {
		return "", &ConversionError{Input: compact, Reason: "not a compact identifier"}
	}
	raw, err := compactEncoding.DecodeString(body)
	if err != nil {
		return "", &ConversionError{Input: compact, Reason: err.Error()}
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		return "", &ConversionError{Input: compact, Reason: err.Error()}
	}
	return u.String(), nil
}

// EnsureCanonical normalizes an identifier of either kind to canonical form.
func EnsureCanonical(s string) (string, error) {
	switch DetectKind(s) {
	case Canonical:
		u, err := uuid.Parse(s)
		if err != nil {
			return "", &ConversionError{Input: s, Reason: err.Error()}
		}
		return u.String(), nil
	case Compact:
		return ToCanonical(s)
	default:
		return "", &ConversionError{Input: s, Reason: "unknown identifier kind"}
	}
}

// EnsureCompact normalizes an identifier of either kind to compact form.
func EnsureCompact(s string) (string, error) {
	switch DetectKind(s) {
	case Canonical:
		return ToCompact(s)
	case Compact:
		return compactMarker + compactBody(s), nil
	default:
		return "", &ConversionError{Input: s, Reason: "unknown identifier kind"}
	}
}

// IDFromLink returns the id part of "path#id", "#id" or a bare "id".
func IDFromLink(link string) string {
	if i := strings.LastIndexByte(link, '#'); i >= 0 {
		return link[i+1:]
	}
	return link
}

// PathFromLink returns the path part of "path#id"; empty for "#id" and bare ids.
func PathFromLink(link string) string {
	if i := strings.LastIndexByte(link, '#'); i >= 0 {
		return link[:i]
	}
	return ""
}

func encodeCompact(u uuid.UUID) string {
	return compactMarker + compactEncoding.EncodeToString(u[:])
}
