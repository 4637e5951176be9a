// Package signature derives stable request signatures used both as response
// cache keys and as lookups into the precomputed bypass-token table.
package signature

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrBaseURLNotConfigured is returned when path normalization cannot run
// because no backend base URL has been configured.
var ErrBaseURLNotConfigured = errors.New("signature: base url not configured")

// Options carries the request-shaping fields that participate in signature
// derivation. Field order here is the canonical scan order; two requests that
// resolve to the same values always collide regardless of how callers built
// their option sets.
type Options struct {
	Fields      string
	Hidden      bool
	Filter      string
	Nearby      string
	Joins       string
	Permissions string
	Validation  string
	BodyIsArray bool
}

// BuildKey derives the signature for a request. The form is
// "{METHOD}:{normalizedPath}>{hash8}" where hash8 is an 8-character base64
// rendering of a rolling hash over the canonical option string.
//
// For GET requests whose final path segment is numeric, the id segment is
// stripped so every id of a resource+shape shares one token-table row. Response
// cache keys fold the full path back in separately (see restcache.CacheKey).
func BuildKey(baseURL, method, path string, opts Options) (string, error) {
	if strings.TrimSpace(baseURL) == "" {
		return "", ErrBaseURLNotConfigured
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	normalized := NormalizePath(baseURL, method, path)

	var acc strings.Builder
	appendOption(&acc, "fields", opts.Fields)
	if opts.Hidden {
		appendOption(&acc, "hidden", "true")
	}
	appendOption(&acc, "filter", opts.Filter)
	appendOption(&acc, "nearby", opts.Nearby)
	appendOption(&acc, "collections", opts.Joins)
	appendOption(&acc, "permissions", opts.Permissions)
	appendOption(&acc, "validation", opts.Validation)
	acc.WriteString("array:")
	acc.WriteString(strconv.FormatBool(opts.BodyIsArray))

	return fmt.Sprintf("%s:%s>%s", method, normalized, hash8(acc.String())), nil
}

// NormalizePath trims the base URL prefix, guarantees a leading slash, and for
// GET requests strips a trailing numeric id segment.
func NormalizePath(baseURL, method, path string) string {
	trimmed := strings.TrimPrefix(path, strings.TrimSuffix(baseURL, "/"))
	trimmed = strings.TrimSuffix(trimmed, "/")
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	if method == http.MethodGet {
		if idx := strings.LastIndex(trimmed, "/"); idx > 0 {
			if isNumeric(trimmed[idx+1:]) {
				trimmed = trimmed[:idx]
			}
		}
	}
	return trimmed
}

func appendOption(acc *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	acc.WriteString(key)
	acc.WriteString(":")
	acc.WriteString(value)
	acc.WriteString("|")
}

// hash8 runs the rolling multiply-shift hash (code = code<<5 - code + ch) with
// 32-bit wraparound and encodes the numeric result as base64, truncated to 8
// characters. The precomputed token tables are keyed by this exact rendering,
// so the arithmetic is part of the wire contract.
func hash8(input string) string {
	var code int32
	for i := 0; i < len(input); i++ {
		code = (code << 5) - code + int32(input[i])
	}
	encoded := base64.RawStdEncoding.EncodeToString([]byte(strconv.FormatInt(int64(code), 10)))
	if len(encoded) > 8 {
		encoded = encoded[:8]
	}
	return encoded
}

func isNumeric(segment string) bool {
	if segment == "" {
		return false
	}
	for i := 0; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}
	return true
}
