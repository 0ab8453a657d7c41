// Package resourcetest provides an in-memory Resource API for tests.
package resourcetest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nuvla/job-engine-sub001/resource"
)

// Server is an in-memory resource.Client. Documents are normalised through
// JSON on every write so numbers come back as float64, as they would over HTTP.
type Server struct {
	mu        sync.Mutex
	docs      map[string]resource.Resource
	created   map[string]int // insertion sequence, used for stable ordering
	seq       int
	now       func() time.Time
	onAdd     []func(id string, doc resource.Resource)
	conflict  func(kind string, payload map[string]any) (string, bool)
	editErrs  map[string][]error
	getErrs   map[string][]error
	deleteErr map[string]error
	edits     map[string][]map[string]any
	adds      map[string]int
	deletes   map[string]int
	gets      map[string]int
}

var _ resource.Client = (*Server)(nil)

// New returns an empty server.
func New() *Server {
	return &Server{
		docs:      map[string]resource.Resource{},
		created:   map[string]int{},
		now:       time.Now,
		editErrs:  map[string][]error{},
		getErrs:   map[string][]error{},
		deleteErr: map[string]error{},
		edits:     map[string][]map[string]any{},
		adds:      map[string]int{},
		deletes:   map[string]int{},
		gets:      map[string]int{},
	}
}

// SetClock overrides the time source used for created/updated stamps.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// OnAdd registers a hook invoked (outside the lock) after every successful Add.
// Tests use it to enqueue new jobs, standing in for the server's queue put.
func (s *Server) OnAdd(fn func(id string, doc resource.Resource)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAdd = append(s.onAdd, fn)
}

// ConflictOn makes Add return 409 when fn reports an existing resource id.
func (s *Server) ConflictOn(fn func(kind string, payload map[string]any) (string, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflict = fn
}

// Put stores a document as-is (it must carry an "id").
func (s *Server) Put(doc resource.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := doc.ID()
	if _, exists := s.docs[id]; !exists {
		s.seq++
		s.created[id] = s.seq
	}
	s.docs[id] = normalise(doc)
}

// Doc returns a copy of a stored document.
func (s *Server) Doc(id string) (resource.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	return normalise(doc), true
}

// FailEdits queues errors returned by the next Edit calls on id.
func (s *Server) FailEdits(id string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editErrs[id] = append(s.editErrs[id], errs...)
}

// FailGets queues errors returned by the next Get calls on id.
func (s *Server) FailGets(id string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErrs[id] = append(s.getErrs[id], errs...)
}

// NotFoundFor makes the next n Get calls on id return 404, simulating the lag
// between creation and visibility.
func (s *Server) NotFoundFor(id string, n int) {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = resource.NewRemoteError(http.StatusNotFound, id+" not found", id)
	}
	s.FailGets(id, errs...)
}

// FailDelete makes every Delete on id return err.
func (s *Server) FailDelete(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErr[id] = err
}

// Edits returns the partial edits successfully applied to id, in order.
func (s *Server) Edits(id string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.edits[id]))
	copy(out, s.edits[id])
	return out
}

// AddCount returns how many resources of kind were created.
func (s *Server) AddCount(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adds[kind]
}

// DeleteCount returns how many times id was deleted.
func (s *Server) DeleteCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes[id]
}

// GetCount returns how many Get calls targeted id.
func (s *Server) GetCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[id]
}

func (s *Server) Get(ctx context.Context, id string) (resource.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets[id]++
	if err := shift(s.getErrs, id); err != nil {
		return nil, err
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, resource.NewRemoteError(http.StatusNotFound, id+" not found", id)
	}
	return normalise(doc), nil
}

func (s *Server) Search(ctx context.Context, kind string, opts resource.SearchOptions) (resource.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return resource.SearchResult{}, err
	}
	match, err := parseFilter(opts.Filter)
	if err != nil {
		return resource.SearchResult{}, resource.NewRemoteError(http.StatusBadRequest, err.Error(), "")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, doc := range s.docs {
		if strings.HasPrefix(id, kind+"/") && match(doc) {
			ids = append(ids, id)
		}
	}
	s.order(ids, opts.OrderBy)

	result := resource.SearchResult{Count: len(ids)}
	if opts.Last > 0 && len(ids) > opts.Last {
		ids = ids[:opts.Last]
	}
	for _, id := range ids {
		result.Resources = append(result.Resources, normalise(s.docs[id]))
	}
	return result, nil
}

// order sorts by insertion, or by a single "attr:asc|desc" clause.
func (s *Server) order(ids []string, orderBy string) {
	attr, dir, _ := strings.Cut(orderBy, ":")
	sort.SliceStable(ids, func(i, j int) bool {
		if attr == "" {
			return s.created[ids[i]] < s.created[ids[j]]
		}
		a, b := s.docs[ids[i]][attr], s.docs[ids[j]][attr]
		if dir == "desc" {
			return lessValue(b, a)
		}
		return lessValue(a, b)
	})
}

func lessValue(a, b any) bool {
	an, aNum := a.(float64)
	bn, bNum := b.(float64)
	if aNum && bNum {
		return an < bn
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func (s *Server) Add(ctx context.Context, kind string, payload map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	if s.conflict != nil {
		if existing, ok := s.conflict(kind, payload); ok {
			s.mu.Unlock()
			return "", resource.NewRemoteError(http.StatusConflict, "conflict with "+existing, existing)
		}
	}

	id := kind + "/" + uuid.NewString()
	doc := resource.Resource{}
	for k, v := range payload {
		doc[k] = v
	}
	stamp := s.now().UTC().Format(time.RFC3339Nano)
	doc["id"] = id
	doc["resource-type"] = kind
	doc["created"] = stamp
	doc["updated"] = stamp
	if kind == "job" {
		if _, ok := doc["state"]; !ok {
			doc["state"] = "QUEUED"
		}
		if _, ok := doc["progress"]; !ok {
			doc["progress"] = 0
		}
	}
	s.seq++
	s.created[id] = s.seq
	s.docs[id] = normalise(doc)
	s.adds[kind]++
	hooks := append([]func(string, resource.Resource){}, s.onAdd...)
	stored := normalise(doc)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(id, stored)
	}
	return id, nil
}

func (s *Server) Edit(ctx context.Context, id string, partial map[string]any) (resource.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := shift(s.editErrs, id); err != nil {
		return nil, err
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, resource.NewRemoteError(http.StatusNotFound, id+" not found", id)
	}
	updated := resource.Resource{}
	for k, v := range doc {
		updated[k] = v
	}
	for k, v := range partial {
		updated[k] = v
	}
	updated["updated"] = s.now().UTC().Format(time.RFC3339Nano)
	s.docs[id] = normalise(updated)
	s.edits[id] = append(s.edits[id], normalise(partial))
	return normalise(s.docs[id]), nil
}

func (s *Server) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := s.docs[id]; !ok {
		return resource.NewRemoteError(http.StatusNotFound, id+" not found", id)
	}
	delete(s.docs, id)
	s.deletes[id]++
	return nil
}

// Operation supports "cancel" on jobs; anything else echoes the params.
func (s *Server) Operation(ctx context.Context, id, name string, params map[string]any) (resource.Resource, error) {
	if name == "cancel" && strings.HasPrefix(id, "job/") {
		return s.Edit(ctx, id, map[string]any{"state": "STOPPING"})
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return normalise(params), nil
}

// Hook echoes the params.
func (s *Server) Hook(ctx context.Context, name string, params map[string]any) (resource.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return normalise(params), nil
}

func shift(queue map[string][]error, id string) error {
	errs := queue[id]
	if len(errs) == 0 {
		return nil
	}
	queue[id] = errs[1:]
	return errs[0]
}

func normalise(in map[string]any) resource.Resource {
	if in == nil {
		return resource.Resource{}
	}
	data, err := json.Marshal(in)
	if err != nil {
		panic(fmt.Sprintf("resourcetest: document is not JSON encodable: %v", err))
	}
	var out resource.Resource
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("resourcetest: %v", err))
	}
	return out
}
