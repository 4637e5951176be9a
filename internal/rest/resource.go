package rest

import (
	"context"
	"encoding/json"
)

// ResourceManager is the non-fluent counterpart to Query for call sites that
// prefer direct method calls over chaining. Both produce identical wire
// requests for equivalent inputs because every manager call goes through the
// same builder.
type ResourceManager struct {
	client   *Client
	resource string
}

// GetAll fetches the resource collection.
func (m *ResourceManager) GetAll(ctx context.Context) (json.RawMessage, error) {
	return m.client.Resource(m.resource).GetAll(ctx)
}

// GetOne fetches one record by id.
func (m *ResourceManager) GetOne(ctx context.Context, id string) (json.RawMessage, error) {
	return m.client.Resource(m.resource).WithID(id).Get(ctx)
}

// Create posts a new record.
func (m *ResourceManager) Create(ctx context.Context, body any) (json.RawMessage, error) {
	return m.client.Resource(m.resource).WithBody(body).Create(ctx)
}

// Update replaces one record.
func (m *ResourceManager) Update(ctx context.Context, id string, body any) (json.RawMessage, error) {
	return m.client.Resource(m.resource).WithID(id).WithBody(body).Update(ctx)
}

// Remove deletes one record.
func (m *ResourceManager) Remove(ctx context.Context, id string) (json.RawMessage, error) {
	return m.client.Resource(m.resource).WithID(id).Delete(ctx)
}
