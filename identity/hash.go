package identity

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
)

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Hash returns the base64url SHA-256 of `["p1","p2",...]`, where each part is
// rendered to a string and has its backslashes and double quotes escaped.
// Order matters and no other normalization is applied.
func Hash(parts ...any) Base64URLData {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, p := range parts {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(escaper.Replace(partString(p)))
		sb.WriteByte('"')
	}
	sb.WriteByte(']')
	sum := sha256.Sum256([]byte(sb.String()))
	return Base64URLData(sum[:])
}

func partString(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// HashMessageID computes base64url(SHA256(base64url(data) || base64url(signature))),
// the two encodings concatenated without separator.
func HashMessageID(data []byte, signature Signature) MessageID {
	sum := sha256.Sum256([]byte(encode(data) + encode(signature)))
	return MessageID(sum[:])
}
