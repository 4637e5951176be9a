package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"time"
)

// Query is a fluent builder keyed to one named resource. Chainable setters
// mutate an internal options draft; terminal verbs validate preconditions and
// dispatch to the request engine.
type Query struct {
	client   *Client
	resource string
	id       string
	hasBody  bool
	opts     RequestOptions
	ctx      context.Context
}

func newQuery(client *Client, resource string) *Query {
	return &Query{client: client, resource: resource}
}

// Filter sets the backend filter expression header.
func (q *Query) Filter(expr string) *Query {
	q.opts.Shaping.Filter = expr
	return q
}

// Page selects a result page.
func (q *Query) Page(page int) *Query {
	q.opts.Shaping.Page = page
	return q
}

// Sort sets the sort directive.
func (q *Query) Sort(sort string) *Query {
	q.opts.Shaping.Sort = sort
	return q
}

// Fields projects the response onto the named fields.
func (q *Query) Fields(fields string) *Query {
	q.opts.Shaping.Fields = fields
	return q
}

// Search sets a free-text search term.
func (q *Query) Search(term string) *Query {
	q.opts.Shaping.Search = term
	return q
}

// Join requests related collections alongside the resource.
func (q *Query) Join(collections string) *Query {
	q.opts.Shaping.Joins = collections
	return q
}

// IncludeHidden asks the backend to include hidden records.
func (q *Query) IncludeHidden() *Query {
	q.opts.Shaping.Hidden = true
	return q
}

// Nearby sets a geospatial lookup expression.
func (q *Query) Nearby(expr string) *Query {
	q.opts.Shaping.Nearby = expr
	return q
}

// WithPermissions sets the permission expression header.
func (q *Query) WithPermissions(expr string) *Query {
	q.opts.Shaping.Permissions = expr
	return q
}

// WithValidation sets the validation directive header.
func (q *Query) WithValidation(expr string) *Query {
	q.opts.Shaping.Validation = expr
	return q
}

// WithSession attaches the caller's session token.
func (q *Query) WithSession(session string) *Query {
	q.opts.Shaping.Session = session
	return q
}

// WithID targets a single record.
func (q *Query) WithID(id string) *Query {
	q.id = id
	return q
}

// WithBody attaches a request body. Slice bodies flag the signature's
// array-body bit.
func (q *Query) WithBody(body any) *Query {
	q.opts.Transport.Body = body
	q.hasBody = body != nil
	if body != nil {
		kind := reflect.ValueOf(body).Kind()
		q.opts.Transport.BodyIsArray = kind == reflect.Slice || kind == reflect.Array
	}
	return q
}

// Cache toggles response caching for this request.
func (q *Query) Cache(enabled bool) *Query {
	q.opts.Caching.Enabled = &enabled
	return q
}

// CacheFor overrides the cache TTL.
func (q *Query) CacheFor(ttl time.Duration) *Query {
	q.opts.Caching.TTL = ttl
	return q
}

// CacheKey overrides the derived cache key.
func (q *Query) CacheKey(key string) *Query {
	q.opts.Caching.Key = key
	return q
}

// Timeout overrides the per-request timeout.
func (q *Query) Timeout(d time.Duration) *Query {
	q.opts.Transport.Timeout = d
	return q
}

// Retries overrides the transport retry budget. Zero disables retries, which
// is how non-idempotent requests opt out of transport replay.
func (q *Query) Retries(n int) *Query {
	q.opts.Transport.Retries = &n
	return q
}

// WithCancelToken attaches a caller-supplied cancellation context that takes
// precedence over the context passed to the terminal verb.
func (q *Query) WithCancelToken(ctx context.Context) *Query {
	q.ctx = ctx
	return q
}

// GetAll fetches the resource collection.
func (q *Query) GetAll(ctx context.Context) (json.RawMessage, error) {
	return q.Execute(ctx, http.MethodGet)
}

// Get fetches one record; requires WithID.
func (q *Query) Get(ctx context.Context) (json.RawMessage, error) {
	if q.id == "" {
		return nil, ErrMissingID
	}
	return q.Execute(ctx, http.MethodGet)
}

// Create posts a new record; requires WithBody.
func (q *Query) Create(ctx context.Context) (json.RawMessage, error) {
	if !q.hasBody {
		return nil, ErrMissingBody
	}
	return q.Execute(ctx, http.MethodPost)
}

// Update replaces one record; requires WithID and WithBody.
func (q *Query) Update(ctx context.Context) (json.RawMessage, error) {
	if q.id == "" {
		return nil, ErrMissingID
	}
	if !q.hasBody {
		return nil, ErrMissingBody
	}
	return q.Execute(ctx, http.MethodPut)
}

// Patch partially updates one record; requires WithID and WithBody.
func (q *Query) Patch(ctx context.Context) (json.RawMessage, error) {
	if q.id == "" {
		return nil, ErrMissingID
	}
	if !q.hasBody {
		return nil, ErrMissingBody
	}
	return q.Execute(ctx, http.MethodPatch)
}

// Delete removes one record; requires WithID.
func (q *Query) Delete(ctx context.Context) (json.RawMessage, error) {
	if q.id == "" {
		return nil, ErrMissingID
	}
	return q.Execute(ctx, http.MethodDelete)
}

// Execute dispatches with an explicit method, bypassing verb preconditions.
func (q *Query) Execute(ctx context.Context, method string) (json.RawMessage, error) {
	if q.ctx != nil {
		ctx = q.ctx
	}
	return q.client.Execute(ctx, method, q.endpoint(), q.opts)
}

func (q *Query) endpoint() string {
	if q.id != "" {
		return "/" + q.resource + "/" + q.id
	}
	return "/" + q.resource
}
