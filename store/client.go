package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacentio/nestdoc/backend"
	"github.com/jacentio/nestdoc/backend/dynamo"
	"github.com/jacentio/nestdoc/backend/firestoredb"
	"github.com/jacentio/nestdoc/backend/memory"
)

const tracerName = "github.com/jacentio/nestdoc/store"

// Backend names accepted in BACKEND.
const (
	BackendFirestore = "firestore"
	BackendDynamoDB  = "dynamodb"
	BackendMemory    = "memory"
)

// backendCustom is logged in place of BACKEND when WithDialer is used.
const backendCustom = "custom"

// dialerFor returns the dialer registered under name, set up from t.
func dialerFor(name string, t Tuning) (backend.Dialer, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case BackendFirestore:
		return firestoredb.Dial, true
	case BackendDynamoDB:
		return dynamo.Dialer(dynamoConfig(t)), true
	case BackendMemory:
		return memory.Dial, true
	}
	return nil, false
}

func dynamoConfig(t Tuning) dynamo.Config {
	return dynamo.Config{
		Table:         t.DynamoTable,
		PartitionKey:  t.DynamoPartitionKey,
		SortKey:       t.DynamoSortKey,
		TTLAttribute:  t.DynamoTTLAttribute,
		NumShards:     t.DynamoShards,
		EventualReads: t.DynamoEventualReads,
	}
}

// Client reads and writes documents of one collection, optionally nested
// under a parent path. It is immutable after New and safe for concurrent use.
type Client struct {
	log        *slog.Logger
	backend    backend.Backend
	collection string
	parent     backend.ParentPath
	timeout    time.Duration
}

// New resolves the configuration of namespace, opens the backend and builds
// the parent path.
//
// All configuration is resolved before the backend is dialed, so a missing
// or malformed key never opens a connection.
func New(ctx context.Context, namespace string, opts ...Option) (*Client, error) {
	o := newOptions(opts)
	r := NewResolver(o.source, namespace)

	projectID, err := r.ProjectID()
	if err != nil {
		return nil, err
	}
	maxRetries, err := r.MaxRetries(o.maxRetries)
	if err != nil {
		return nil, err
	}
	scopes, err := r.Scopes(o.defaultScopes)
	if err != nil {
		return nil, err
	}
	creds, err := r.Credentials()
	if err != nil {
		return nil, err
	}
	collection, err := r.Collection()
	if err != nil {
		return nil, err
	}
	collectionPath, err := r.CollectionPath()
	if err != nil {
		return nil, err
	}
	tuning, err := r.Tuning()
	if err != nil {
		return nil, err
	}

	dial, backendName := o.dialer, backendCustom
	if dial == nil {
		d, ok := dialerFor(tuning.Backend, tuning)
		if !ok {
			return nil, invalidConfig(r.Key(KeyBackend), tuning.Backend, fmt.Errorf("unknown backend %q", tuning.Backend))
		}
		dial, backendName = d, tuning.Backend
	}

	b, err := dial(ctx, backend.Config{
		ProjectID:   projectID,
		MaxRetries:  maxRetries,
		Endpoint:    tuning.Endpoint,
		Scopes:      scopes,
		Credentials: creds,
	})
	if err != nil {
		return nil, wrap(KindInitialize, err)
	}

	var parent backend.ParentPath
	if collectionPath != nil {
		parent, err = BuildParentPath(b, collectionPath)
		if err != nil {
			if cerr := b.Close(); cerr != nil {
				o.logger.WarnContext(ctx, "close backend", slog.Any("error", cerr))
			}
			return nil, err
		}
	}

	c := &Client{
		log:        o.logger,
		backend:    b,
		collection: collection,
		parent:     parent,
		timeout:    tuning.Timeout,
	}
	c.log.InfoContext(ctx, "client initialized",
		slog.String("namespace", namespace),
		slog.String("backend", backendName),
		slog.String("collection", collection),
		slog.String("parent_path", c.parentString()),
	)
	return c, nil
}

// Collection returns the target collection name.
func (c *Client) Collection() string {
	return c.collection
}

// ParentPath returns the resolved parent path, or nil for a top-level collection.
func (c *Client) ParentPath() backend.ParentPath {
	return c.parent
}

// Close releases the backend.
func (c *Client) Close() error {
	return c.backend.Close()
}

// Read fetches document id and decodes it into a new T.
// It returns nil and no error when the document does not exist.
func Read[T any](ctx context.Context, c *Client, id string) (*T, error) {
	var v T
	res, err := c.execute(ctx, "Read", KindRead, backend.OpGet, id, &v)
	if err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, nil
	}
	return &v, nil
}

// Write creates document id or replaces it with v. A map[string]any v is
// merged into the stored fields instead.
func Write[T any](ctx context.Context, c *Client, id string, v T) error {
	_, err := c.execute(ctx, "Write", KindWrite, backend.OpUpsert, id, v)
	return err
}

// Delete removes document id. Deleting a missing document is not an error.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.execute(ctx, "Delete", KindDelete, backend.OpDelete, id, nil)
	return err
}

func (c *Client) execute(ctx context.Context, name string, kind Kind, op backend.Op, id string, obj any) (backend.Result, error) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, "Client."+name, trace.WithAttributes(
		attribute.String("nestdoc.collection", c.collection),
		attribute.String("nestdoc.parent_path", c.parentString()),
		attribute.String("nestdoc.document_id", id),
	))
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		spanCtx, cancel = context.WithTimeout(spanCtx, c.timeout)
		defer cancel()
	}

	res, err := c.backend.Execute(spanCtx, backend.Request{
		Op:         op,
		Collection: c.collection,
		Parent:     c.parent,
		DocumentID: id,
		Object:     obj,
	})
	if err != nil {
		err = wrap(kind, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.ErrorContext(spanCtx, "document operation failed",
			slog.String("op", op.String()),
			slog.String("collection", c.collection),
			slog.String("document_id", id),
			slog.Any("error", err),
		)
		return backend.Result{}, err
	}
	if op == backend.OpGet {
		span.SetAttributes(attribute.Bool("nestdoc.found", res.Found))
	}
	return res, nil
}

func (c *Client) parentString() string {
	if c.parent == nil {
		return ""
	}
	return c.parent.String()
}
