// Package backend defines the contract between the nestdoc client and the
// document databases it fronts.
//
// A backend composes parent paths and executes single-document requests.
// Encoding of payloads, transport, authentication and retry policy all live
// behind this interface.
package backend

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidLevel is returned when a collection or document segment cannot be addressed.
	ErrInvalidLevel = errors.New("backend: invalid path level")

	// ErrForeignParentPath is returned when a ParentPath built by another backend is passed in.
	ErrForeignParentPath = errors.New("backend: parent path belongs to a different backend")

	// ErrUnsupportedOp is returned for an Op the backend does not know.
	ErrUnsupportedOp = errors.New("backend: unsupported operation")
)

// Separator joins path segments in textual paths.
const Separator = "/"

// Op is the kind of a single-document request.
type Op int

const (
	// OpGet decodes the stored document into Request.Object.
	OpGet Op = iota
	// OpUpsert creates the document or replaces it with Request.Object.
	// A map[string]any payload is merged into the stored fields instead.
	OpUpsert
	// OpDelete removes the document. Deleting an absent document is not an error.
	OpDelete
)

// String implements fmt.Stringer.
func (op Op) String() string {
	switch op {
	case OpGet:
		return "get"
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Request describes one operation on one document.
type Request struct {
	Op Op

	// Collection is the target collection, relative to Parent.
	Collection string

	// Parent is the ancestor chain. Nil addresses a top-level collection.
	Parent ParentPath

	DocumentID string

	// Object is the value to encode for OpUpsert and the pointer to
	// decode into for OpGet. Unused for OpDelete.
	Object any
}

// Target is the (collection, document) level the request addresses.
// Backends validate it like any other level, so a document id can never
// reach outside its collection.
func (r Request) Target() Level {
	return Level{Collection: r.Collection, Document: r.DocumentID}
}

// IsPatch reports whether obj is a field map that OpUpsert merges into the
// stored document rather than a value that replaces it.
func IsPatch(obj any) bool {
	_, ok := obj.(map[string]any)
	return ok
}

// Result reports the outcome of Execute.
type Result struct {
	// Found is false when OpGet hit no document.
	Found bool
}

// ParentPath is an opaque, backend-specific chain of (collection, document)
// ancestor levels.
type ParentPath interface {
	// At nests the receiver beneath the (collection, document) level,
	// returning the longer path. The receiver is left unchanged.
	At(collection, document string) (ParentPath, error)

	// Levels returns the ancestor levels, outermost first.
	Levels() Levels

	String() string
}

// Backend is a live connection to a document database.
// Implementations must be safe for concurrent use.
type Backend interface {
	// ParentPath builds the innermost ancestor level.
	ParentPath(collection, document string) (ParentPath, error)

	Execute(ctx context.Context, req Request) (Result, error)

	Close() error
}

// Config carries the connection parameters resolved by the client.
type Config struct {
	ProjectID string

	// MaxRetries is the retry budget the backend applies to its own calls.
	MaxRetries int

	// Endpoint optionally overrides the API endpoint.
	Endpoint string

	Scopes []string

	// Credentials is the raw credential material, usually a JSON document.
	Credentials string
}

// Dialer opens a Backend.
type Dialer func(ctx context.Context, cfg Config) (Backend, error)

// Level is one (collection, document) step of a parent path.
type Level struct {
	Collection string
	Document   string
}

// Validate reports whether both segments are non-empty and free of Separator.
func (l Level) Validate() error {
	if err := validateSegment(l.Collection); err != nil {
		return err
	}
	return validateSegment(l.Document)
}

func validateSegment(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrInvalidLevel
	}
	if strings.Contains(s, Separator) {
		return ErrInvalidLevel
	}
	return nil
}

// Levels is an ordered ancestor chain, outermost first.
type Levels []Level

// Prepend returns a new chain with l as the outermost level.
func (ls Levels) Prepend(l Level) Levels {
	out := make(Levels, 0, len(ls)+1)
	out = append(out, l)
	return append(out, ls...)
}

// Segments flattens the chain into alternating collection/document segments.
func (ls Levels) Segments() []string {
	segs := make([]string, 0, 2*len(ls))
	for _, l := range ls {
		segs = append(segs, l.Collection, l.Document)
	}
	return segs
}

// String renders the chain as "a/1/b/2".
func (ls Levels) String() string {
	return strings.Join(ls.Segments(), Separator)
}

// DocumentPath renders the full path of a document under the chain.
func (ls Levels) DocumentPath(collection, documentID string) string {
	segs := append(ls.Segments(), collection, documentID)
	return strings.Join(segs, Separator)
}

// LevelsOf returns the levels of p, or nil when p is nil.
func LevelsOf(p ParentPath) Levels {
	if p == nil {
		return nil
	}
	return p.Levels()
}
