// Package firestoredb implements the nestdoc backend on Cloud Firestore.
//
// Parent paths map directly onto Firestore's native nesting: the levels
// a/1/b/2 and collection "users" address the document a/1/b/2/users/{id}.
package firestoredb

import (
	"context"
	"fmt"
	"slices"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jacentio/nestdoc/backend"
)

// DefaultScopes returns the OAuth scopes Firestore needs.
func DefaultScopes() []string {
	return []string{
		"https://www.googleapis.com/auth/cloud-platform",
		"https://www.googleapis.com/auth/datastore",
	}
}

// Backend provides document operations on a Firestore database.
type Backend struct {
	client *firestore.Client
}

// New wraps an open Firestore client. The Backend owns it from then on.
func New(client *firestore.Client) *Backend {
	return &Backend{client: client}
}

// ParentPath implements backend.Backend.
func (b *Backend) ParentPath(collection, document string) (backend.ParentPath, error) {
	l := backend.Level{Collection: collection, Document: document}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("parent path %q/%q: %w", collection, document, err)
	}
	return &parentPath{owner: b, levels: backend.Levels{l}}, nil
}

// Execute implements backend.Backend.
func (b *Backend) Execute(ctx context.Context, req backend.Request) (backend.Result, error) {
	ref, err := b.doc(req)
	if err != nil {
		return backend.Result{}, err
	}

	switch req.Op {
	case backend.OpGet:
		snap, err := ref.Get(ctx)
		if status.Code(err) == codes.NotFound {
			return backend.Result{}, nil
		}
		if err != nil {
			return backend.Result{}, err
		}
		if err := snap.DataTo(req.Object); err != nil {
			return backend.Result{}, fmt.Errorf("decode %s: %w", ref.Path, err)
		}
		return backend.Result{Found: true}, nil

	case backend.OpUpsert:
		var opts []firestore.SetOption
		if backend.IsPatch(req.Object) {
			opts = append(opts, firestore.MergeAll)
		}
		_, err := ref.Set(ctx, req.Object, opts...)
		return backend.Result{}, err

	case backend.OpDelete:
		_, err := ref.Delete(ctx)
		return backend.Result{}, err

	default:
		return backend.Result{}, fmt.Errorf("%w: %s", backend.ErrUnsupportedOp, req.Op)
	}
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	return b.client.Close()
}

// doc resolves the document reference addressed by req.
func (b *Backend) doc(req backend.Request) (*firestore.DocumentRef, error) {
	var levels backend.Levels
	if req.Parent != nil {
		pp, ok := req.Parent.(*parentPath)
		if !ok || pp.owner != b {
			return nil, backend.ErrForeignParentPath
		}
		levels = pp.levels
	}

	target := req.Target()
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("document %q/%q: %w", req.Collection, req.DocumentID, err)
	}

	var parent *firestore.DocumentRef
	for _, l := range slices.Concat(levels, backend.Levels{target}) {
		var coll *firestore.CollectionRef
		if parent == nil {
			coll = b.client.Collection(l.Collection)
		} else {
			coll = parent.Collection(l.Collection)
		}
		parent = coll.Doc(l.Document)
	}
	return parent, nil
}

type parentPath struct {
	owner  *Backend
	levels backend.Levels
}

func (p *parentPath) At(collection, document string) (backend.ParentPath, error) {
	l := backend.Level{Collection: collection, Document: document}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("ancestor %q/%q: %w", collection, document, err)
	}
	return &parentPath{owner: p.owner, levels: p.levels.Prepend(l)}, nil
}

func (p *parentPath) Levels() backend.Levels {
	return slices.Clone(p.levels)
}

func (p *parentPath) String() string {
	return p.levels.String()
}
