// Package dataurl encodes binary content as RFC 2397 data URLs of the form
// data:<mime-type>;base64,<payload>.
package dataurl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	scheme = "data:"
	marker = ";base64,"
)

var ErrMalformed = errors.New("malformed data URL")

// Encode returns data as a base64 data URL with the given MIME type.
func Encode(mimeType string, data []byte) string {
	var sb strings.Builder
	sb.Grow(len(scheme) + len(mimeType) + len(marker) + base64.StdEncoding.EncodedLen(len(data)))
	sb.WriteString(scheme)
	sb.WriteString(mimeType)
	sb.WriteString(marker)
	sb.WriteString(base64.StdEncoding.EncodeToString(data))
	return sb.String()
}

// Split separates a base64 data URL into its MIME type and still-encoded
// payload without decoding it.
func Split(s string) (mimeType, payload string, err error) {
	rest, ok := strings.CutPrefix(s, scheme)
	if !ok {
		return "", "", fmt.Errorf("%w: missing %q scheme", ErrMalformed, scheme)
	}
	mimeType, payload, ok = strings.Cut(rest, marker)
	if !ok {
		return "", "", fmt.Errorf("%w: not base64 encoded", ErrMalformed)
	}
	if mimeType == "" {
		return "", "", fmt.Errorf("%w: empty MIME type", ErrMalformed)
	}
	return mimeType, payload, nil
}

// Decode is the inverse of Encode.
func Decode(s string) (mimeType string, data []byte, err error) {
	mimeType, payload, err := Split(s)
	if err != nil {
		return "", nil, err
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return mimeType, data, nil
}
