// Package memory provides an in-process backend.
//
// Documents are stored JSON-encoded under their full path. The backend also
// records every parent path composition call so tests can assert ordering.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jacentio/nestdoc/backend"
)

// Call is a recorded parent path composition.
type Call struct {
	// Method is "ParentPath" or "At".
	Method string
	Level  backend.Level
}

// Backend implements backend.Backend with thread-safe in-memory storage.
type Backend struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	calls []Call

	// Config is the configuration Dial received.
	Config backend.Config
}

// New creates an empty Backend.
func New() *Backend {
	return &Backend{docs: make(map[string][]byte)}
}

// Dial returns a fresh Backend holding cfg. It never fails.
func Dial(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
	b := New()
	b.Config = cfg
	return b, nil
}

// Dialer returns a backend.Dialer that always hands out b.
func Dialer(b *Backend) backend.Dialer {
	return func(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
		b.mu.Lock()
		b.Config = cfg
		b.mu.Unlock()
		return b, nil
	}
}

// Calls returns the recorded composition calls in order.
func (b *Backend) Calls() []Call {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// Len returns the number of stored documents.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docs)
}

func (b *Backend) record(method string, l backend.Level) {
	b.mu.Lock()
	b.calls = append(b.calls, Call{Method: method, Level: l})
	b.mu.Unlock()
}

// ParentPath implements backend.Backend.
func (b *Backend) ParentPath(collection, document string) (backend.ParentPath, error) {
	l := backend.Level{Collection: collection, Document: document}
	b.record("ParentPath", l)
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("parent path %q/%q: %w", collection, document, err)
	}
	return &parentPath{owner: b, levels: backend.Levels{l}}, nil
}

// Execute implements backend.Backend.
func (b *Backend) Execute(ctx context.Context, req backend.Request) (backend.Result, error) {
	if err := ctx.Err(); err != nil {
		return backend.Result{}, err
	}
	levels, err := b.levels(req.Parent)
	if err != nil {
		return backend.Result{}, err
	}
	if err := req.Target().Validate(); err != nil {
		return backend.Result{}, fmt.Errorf("document %q/%q: %w", req.Collection, req.DocumentID, err)
	}
	key := levels.DocumentPath(req.Collection, req.DocumentID)

	switch req.Op {
	case backend.OpGet:
		return b.get(key, req.Object)
	case backend.OpUpsert:
		return backend.Result{}, b.upsert(key, req.Object)
	case backend.OpDelete:
		b.mu.Lock()
		delete(b.docs, key)
		b.mu.Unlock()
		return backend.Result{}, nil
	default:
		return backend.Result{}, fmt.Errorf("%w: %s", backend.ErrUnsupportedOp, req.Op)
	}
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) levels(p backend.ParentPath) (backend.Levels, error) {
	if p == nil {
		return nil, nil
	}
	pp, ok := p.(*parentPath)
	if !ok || pp.owner != b {
		return nil, backend.ErrForeignParentPath
	}
	return pp.levels, nil
}

func (b *Backend) get(key string, into any) (backend.Result, error) {
	b.mu.RLock()
	raw, ok := b.docs[key]
	b.mu.RUnlock()

	if !ok {
		return backend.Result{}, nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return backend.Result{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return backend.Result{Found: true}, nil
}

// upsert replaces the stored document. A patch merges its top-level fields
// into a stored JSON object instead.
func (b *Backend) upsert(key string, obj any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	old, ok := b.docs[key]
	if ok && backend.IsPatch(obj) {
		if merged, ok := mergeObjects(old, raw); ok {
			raw = merged
		}
	}
	b.docs[key] = raw
	return nil
}

func mergeObjects(old, next []byte) ([]byte, bool) {
	var oldFields, nextFields map[string]json.RawMessage
	if json.Unmarshal(old, &oldFields) != nil || json.Unmarshal(next, &nextFields) != nil {
		return nil, false
	}
	if oldFields == nil || nextFields == nil {
		return nil, false
	}
	for k, v := range nextFields {
		oldFields[k] = v
	}
	merged, err := json.Marshal(oldFields)
	if err != nil {
		return nil, false
	}
	return merged, true
}

type parentPath struct {
	owner  *Backend
	levels backend.Levels
}

func (p *parentPath) At(collection, document string) (backend.ParentPath, error) {
	l := backend.Level{Collection: collection, Document: document}
	p.owner.record("At", l)
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("ancestor %q/%q: %w", collection, document, err)
	}
	return &parentPath{owner: p.owner, levels: p.levels.Prepend(l)}, nil
}

func (p *parentPath) Levels() backend.Levels {
	out := make(backend.Levels, len(p.levels))
	copy(out, p.levels)
	return out
}

func (p *parentPath) String() string {
	return p.levels.String()
}
