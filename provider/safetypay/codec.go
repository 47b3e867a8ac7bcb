package safetypay

import (
	"fmt"
	"net/url"
	"strings"
)

// Pair is one key=value entry of the flat wire format
type Pair struct {
	Key   string
	Value string
}

// EncodeFlat joins pairs as key=value&key=value, keeping their order.
// Values are written verbatim.
func EncodeFlat(pairs []Pair) string {
	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(p.Key)
		sb.WriteByte('=')
		sb.WriteString(p.Value)
	}
	return sb.String()
}

// DecodeFlat splits a flat payload into pairs. Only the first '=' of a segment
// separates key from value; empty segments are skipped.
func DecodeFlat(raw string) ([]Pair, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	segments := strings.Split(raw, "&")
	pairs := make([]Pair, 0, len(segments))
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		key, value, ok := strings.Cut(seg, "=")
		if !ok {
			return nil, fmt.Errorf("segment %d %q has no '='", i, seg)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("segment %d has an empty key", i)
		}
		pairs = append(pairs, Pair{Key: key, Value: value})
	}
	return pairs, nil
}

// urlDecode decodes a URL-encoded gateway response, returning the input unchanged
// when it contains invalid escapes
func urlDecode(raw string) string {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}
