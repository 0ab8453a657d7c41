// Package resource defines the contract with the remote Resource API, the
// system of record for jobs and the resources they target.
package resource

import (
	"context"
	"encoding/json"
	"strconv"
)

// Resource is a remote document as decoded from JSON.
type Resource map[string]any

// Ref references another resource by id.
type Ref struct {
	Href string `json:"href"`
}

// ID returns the resource id, e.g. "job/0b5f...".
func (r Resource) ID() string {
	return r.String("id")
}

// String returns a string attribute, or "" when absent or not a string.
func (r Resource) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int returns a numeric attribute. JSON numbers decode as float64 or json.Number.
func (r Resource) Int(key string) (int, bool) {
	switch v := r[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Ref returns a {"href": ...} attribute.
func (r Resource) Ref(key string) (Ref, bool) {
	return refOf(r[key])
}

// Refs returns a list of {"href": ...} attributes, skipping malformed items.
func (r Resource) Refs(key string) []Ref {
	var items []any
	switch v := r[key].(type) {
	case []Ref:
		return append([]Ref(nil), v...)
	case []map[string]any:
		for _, item := range v {
			items = append(items, item)
		}
	case []any:
		items = v
	}
	refs := make([]Ref, 0, len(items))
	for _, item := range items {
		if ref, ok := refOf(item); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

func refOf(v any) (Ref, bool) {
	switch ref := v.(type) {
	case Ref:
		return ref, ref.Href != ""
	case map[string]any:
		href, _ := ref["href"].(string)
		return Ref{Href: href}, href != ""
	case Resource:
		href, _ := ref["href"].(string)
		return Ref{Href: href}, href != ""
	default:
		return Ref{}, false
	}
}

// SearchOptions narrows a collection search. Filter uses the Resource API
// CIMI-style filter grammar, e.g. `state='QUEUED' and action='cleanup_jobs'`.
type SearchOptions struct {
	Filter  string
	Select  string // comma separated attribute names
	OrderBy string // e.g. "created:desc"
	Last    int    // 0 = server default
}

// SearchResult holds the total match count and the returned page.
type SearchResult struct {
	Count     int        `json:"count"`
	Resources []Resource `json:"resources"`
}

// Client is the Resource API as consumed by the engine. All calls may return a
// *RemoteError carrying the HTTP status code.
type Client interface {
	Get(ctx context.Context, id string) (Resource, error)
	Search(ctx context.Context, kind string, opts SearchOptions) (SearchResult, error)
	// Add creates a resource and returns its id.
	Add(ctx context.Context, kind string, payload map[string]any) (string, error)
	// Edit applies a partial update and returns the updated resource.
	Edit(ctx context.Context, id string, partial map[string]any) (Resource, error)
	Delete(ctx context.Context, id string) error
	Operation(ctx context.Context, id, name string, params map[string]any) (Resource, error)
	Hook(ctx context.Context, name string, params map[string]any) (Resource, error)
}
