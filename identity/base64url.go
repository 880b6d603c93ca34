package identity

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidBase64 is returned when a string is not base64url.
var ErrInvalidBase64 = errors.New("invalid base64url data")

// Base64URLData is a byte buffer with a canonical base64url string form.
// Values are treated as immutable: callers must not modify the slice.
type Base64URLData []byte

// DecodeBase64URL parses padded or unpadded base64url.
func DecodeBase64URL(s string) (Base64URLData, error) {
	b, err := decode(s)
	if err != nil {
		return nil, err
	}
	return Base64URLData(b), nil
}

func decode(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") || len(s)%4 == 0 {
		b, err := base64.URLEncoding.DecodeString(s)
		if err == nil {
			return b, nil
		}
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBase64, s)
	}
	return b, nil
}

func encode(b []byte) string {
	return base64.URLEncoding.EncodeToString(b)
}

func unmarshalText(dst *[]byte, text []byte) error {
	b, err := decode(string(text))
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

// String returns the padded base64url encoding.
func (b Base64URLData) String() string { return encode(b) }

// Bytes returns a copy of the underlying buffer.
func (b Base64URLData) Bytes() []byte { return bytes.Clone(b) }

// Equal compares decoded bytes.
func (b Base64URLData) Equal(o Base64URLData) bool { return bytes.Equal(b, o) }

// IsEmpty reports whether the buffer holds no bytes.
func (b Base64URLData) IsEmpty() bool { return len(b) == 0 }

func (b Base64URLData) MarshalText() ([]byte, error) { return []byte(encode(b)), nil }

func (b *Base64URLData) UnmarshalText(text []byte) error {
	return unmarshalText((*[]byte)(b), text)
}
