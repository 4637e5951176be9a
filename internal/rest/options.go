// Package rest is the client-side request engine for the OpenShelf backend: it
// translates high-level shaping options into transport requests, routes through
// the response cache for GETs, and retries transport failures with exponential
// backoff.
package rest

import (
	"net/url"
	"strconv"
	"time"

	"github.com/openshelf/openshelf-go/internal/restcache"
	"github.com/openshelf/openshelf-go/internal/signature"
)

// ShapingOptions become backend headers and query parameters that shape the
// response: projection, filtering, joins, search, geospatial lookups, and the
// caller's session token.
type ShapingOptions struct {
	Fields      string
	Hidden      bool
	Filter      string
	Nearby      string
	Joins       string
	Permissions string
	Validation  string
	Search      string
	Sort        string
	Page        int
	Session     string
}

// CachingOptions mirror restcache.Options at the request level.
type CachingOptions struct {
	Enabled *bool
	TTL     time.Duration
	Key     string
}

// TransportOptions carry the body and transport-level tuning. Zero values
// inherit the client defaults (3 retries, 30s timeout).
type TransportOptions struct {
	Body        any
	BodyIsArray bool
	// Retries overrides the client's retry budget when non-nil. An explicit
	// zero disables retries; non-idempotent calls rely on that distinction.
	Retries *int
	Timeout time.Duration
}

// RequestOptions groups the three concerns so precondition checks stay
// type-checkable instead of spelunking one flat options bag.
type RequestOptions struct {
	Shaping   ShapingOptions
	Caching   CachingOptions
	Transport TransportOptions
}

func (o RequestOptions) signatureOptions() signature.Options {
	return signature.Options{
		Fields:      o.Shaping.Fields,
		Hidden:      o.Shaping.Hidden,
		Filter:      o.Shaping.Filter,
		Nearby:      o.Shaping.Nearby,
		Joins:       o.Shaping.Joins,
		Permissions: o.Shaping.Permissions,
		Validation:  o.Shaping.Validation,
		BodyIsArray: o.Transport.BodyIsArray,
	}
}

func (o RequestOptions) cacheOptions() restcache.Options {
	return restcache.Options{
		Enabled: o.Caching.Enabled,
		TTL:     o.Caching.TTL,
		Key:     o.Caching.Key,
	}
}

// headerValues maps shaping options onto their backend header names.
func (o ShapingOptions) headerValues() map[string]string {
	headers := make(map[string]string)
	if o.Filter != "" {
		headers["filter"] = o.Filter
	}
	if o.Fields != "" {
		headers["fields"] = o.Fields
	}
	if o.Session != "" {
		headers["session"] = o.Session
	}
	if o.Nearby != "" {
		headers["nearby"] = o.Nearby
	}
	if o.Joins != "" {
		headers["collections"] = o.Joins
	}
	if o.Validation != "" {
		headers["validation"] = o.Validation
	}
	if o.Permissions != "" {
		headers["permissions"] = o.Permissions
	}
	if o.Hidden {
		headers["hidden"] = "true"
	}
	return headers
}

// queryValues maps shaping options onto backend query parameters.
func (o ShapingOptions) queryValues() url.Values {
	values := url.Values{}
	if o.Page > 0 {
		values.Set("page", strconv.Itoa(o.Page))
	}
	if o.Sort != "" {
		values.Set("sort", o.Sort)
	}
	if o.Search != "" {
		values.Set("search", o.Search)
	}
	return values
}
