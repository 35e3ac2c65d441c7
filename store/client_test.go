package store_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jacentio/nestdoc/backend"
	"github.com/jacentio/nestdoc/backend/memory"
	"github.com/jacentio/nestdoc/store"
)

type User struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

func baseConfig() store.Map {
	return store.Map{
		"APP_PROJECT_ID":  "proj",
		"APP_CREDENTIALS": "{}",
		"APP_COLLECTION":  "users",
	}
}

func with(m store.Map, kv ...string) store.Map {
	out := store.Map{}
	for k, v := range m {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

func newClient(t *testing.T, src store.Map, opts ...store.Option) (*store.Client, *memory.Backend) {
	t.Helper()
	b := memory.New()
	opts = append([]store.Option{
		store.WithSource(src),
		store.WithDialer(memory.Dialer(b)),
	}, opts...)

	c, err := store.New(context.Background(), "APP", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, b
}

type failingBackend struct {
	*memory.Backend
	err      error
	closeErr error
	closed   bool
}

func (f *failingBackend) Execute(ctx context.Context, req backend.Request) (backend.Result, error) {
	return backend.Result{}, f.err
}

func (f *failingBackend) Close() error {
	f.closed = true
	return f.closeErr
}

// blockingBackend waits for the context to end.
type blockingBackend struct {
	*memory.Backend
}

func (blockingBackend) Execute(ctx context.Context, req backend.Request) (backend.Result, error) {
	<-ctx.Done()
	return backend.Result{}, ctx.Err()
}

func TestNew(t *testing.T) {
	t.Run("will forward resolved config to the dialer", func(t *testing.T) {
		c, b := newClient(t, with(baseConfig(), "APP_ENDPOINT", "localhost:1"))

		assert.Equal(t, "users", c.Collection())
		assert.Nil(t, c.ParentPath())
		assert.Equal(t, backend.Config{
			ProjectID:   "proj",
			MaxRetries:  store.DefaultMaxRetries,
			Endpoint:    "localhost:1",
			Scopes:      []string{"https://www.googleapis.com/auth/cloud-platform", "https://www.googleapis.com/auth/datastore"},
			Credentials: "{}",
		}, b.Config)
	})

	t.Run("will apply configured retries and scopes", func(t *testing.T) {
		_, b := newClient(t, with(baseConfig(), "APP_MAX_RETRIES", "5", "APP_SCOPES", "a, b ,c"))

		assert.Equal(t, 5, b.Config.MaxRetries)
		assert.Equal(t, []string{"a", "b", "c"}, b.Config.Scopes)
	})

	t.Run("will apply default overrides", func(t *testing.T) {
		_, b := newClient(t, baseConfig(),
			store.WithDefaultMaxRetries(7),
			store.WithDefaultScopes(func() []string { return []string{"custom"} }),
		)

		assert.Equal(t, 7, b.Config.MaxRetries)
		assert.Equal(t, []string{"custom"}, b.Config.Scopes)
	})

	t.Run("will build the parent path from the last pair outward", func(t *testing.T) {
		c, b := newClient(t, with(baseConfig(), "APP_COLLECTION_PATH", "a/1/b/2"))

		require.NotNil(t, c.ParentPath())
		assert.Equal(t, "a/1/b/2", c.ParentPath().String())
		assert.Equal(t, []memory.Call{
			{Method: "ParentPath", Level: backend.Level{Collection: "b", Document: "2"}},
			{Method: "At", Level: backend.Level{Collection: "a", Document: "1"}},
		}, b.Calls())
	})

	t.Run("will dial the backend named by BACKEND", func(t *testing.T) {
		c, err := store.New(context.Background(), "APP", store.WithSource(with(baseConfig(), "APP_BACKEND", "memory")))
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, store.Write(context.Background(), c, "u1", User{Name: "Ada"}))
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if a required key is missing", func(t *testing.T) {
			for _, key := range []string{"APP_PROJECT_ID", "APP_CREDENTIALS", "APP_COLLECTION"} {
				t.Run(key, func(t *testing.T) {
					src := baseConfig()
					delete(src, key)
					b := memory.New()

					_, err := store.New(context.Background(), "APP", store.WithSource(src), store.WithDialer(memory.Dialer(b)))

					var e *store.Error
					require.ErrorAs(t, err, &e)
					assert.ErrorIs(t, err, store.ErrMissingConfig)
					assert.Equal(t, key, e.Key)
					assert.Empty(t, b.Config.ProjectID, "backend must not be dialed")
				})
			}
		})

		t.Run("if max retries is malformed", func(t *testing.T) {
			_, err := store.New(context.Background(), "APP",
				store.WithSource(with(baseConfig(), "APP_MAX_RETRIES", "abc")),
				store.WithDialer(memory.Dialer(memory.New())),
			)

			var e *store.Error
			require.ErrorAs(t, err, &e)
			assert.ErrorIs(t, err, store.ErrInvalidConfig)
			assert.Equal(t, "APP_MAX_RETRIES", e.Key)
			assert.Equal(t, "abc", e.Value)
			assert.Error(t, errors.Unwrap(err))
		})

		t.Run("if the collection path is odd", func(t *testing.T) {
			fb := &failingBackend{Backend: memory.New()}
			dialer := func(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
				return fb, nil
			}

			_, err := store.New(context.Background(), "APP",
				store.WithSource(with(baseConfig(), "APP_COLLECTION_PATH", "a/1/b")),
				store.WithDialer(dialer),
			)

			var e *store.Error
			require.ErrorAs(t, err, &e)
			assert.ErrorIs(t, err, store.ErrInvalidCollectionPath)
			assert.Equal(t, "a/1/b", e.Value)
			assert.True(t, fb.closed)
		})

		t.Run("if the backend is unknown", func(t *testing.T) {
			_, err := store.New(context.Background(), "APP", store.WithSource(with(baseConfig(), "APP_BACKEND", "cassandra")))

			var e *store.Error
			require.ErrorAs(t, err, &e)
			assert.ErrorIs(t, err, store.ErrInvalidConfig)
			assert.Equal(t, "APP_BACKEND", e.Key)
			assert.Equal(t, "cassandra", e.Value)
		})

		t.Run("if dialing fails", func(t *testing.T) {
			cause := errors.New("no route")
			dialer := func(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
				return nil, cause
			}

			_, err := store.New(context.Background(), "APP", store.WithSource(baseConfig()), store.WithDialer(dialer))

			assert.ErrorIs(t, err, store.ErrInitialize)
			assert.ErrorIs(t, err, cause)
		})

		t.Run("if the backend rejects the parent path", func(t *testing.T) {
			var buf bytes.Buffer
			fb := &failingBackend{Backend: memory.New(), closeErr: errors.New("connection reset")}
			dialer := func(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
				return fb, nil
			}

			_, err := store.New(context.Background(), "APP",
				store.WithSource(with(baseConfig(), "APP_COLLECTION_PATH", "a//b/2")),
				store.WithDialer(dialer),
				store.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
			)

			assert.ErrorIs(t, err, store.ErrInitialize)
			assert.ErrorIs(t, err, backend.ErrInvalidLevel)
			assert.True(t, fb.closed)
			assert.Contains(t, buf.String(), "level=WARN")
			assert.Contains(t, buf.String(), "close backend")
			assert.Contains(t, buf.String(), "connection reset")
		})
	})
}

func TestReadWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("will round trip a document", func(t *testing.T) {
		c, _ := newClient(t, with(baseConfig(), "APP_COLLECTION_PATH", "orgs/o1"))

		require.NoError(t, store.Write(ctx, c, "u1", User{Name: "Ada", Email: "ada@example.com"}))

		u, err := store.Read[User](ctx, c, "u1")
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, User{Name: "Ada", Email: "ada@example.com"}, *u)
	})

	t.Run("will return nil for a missing document", func(t *testing.T) {
		c, _ := newClient(t, baseConfig())

		u, err := store.Read[User](ctx, c, "missing")
		assert.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("will scope documents by parent path", func(t *testing.T) {
		b := memory.New()
		dial := store.WithDialer(memory.Dialer(b))

		c1, err := store.New(ctx, "APP", store.WithSource(with(baseConfig(), "APP_COLLECTION_PATH", "orgs/o1")), dial)
		require.NoError(t, err)
		c2, err := store.New(ctx, "APP", store.WithSource(with(baseConfig(), "APP_COLLECTION_PATH", "orgs/o2")), dial)
		require.NoError(t, err)

		require.NoError(t, store.Write(ctx, c1, "u1", User{Name: "Ada"}))

		u, err := store.Read[User](ctx, c2, "u1")
		require.NoError(t, err)
		assert.Nil(t, u)
		assert.Equal(t, 1, b.Len())
	})

	t.Run("will merge map writes into the stored document", func(t *testing.T) {
		c, _ := newClient(t, baseConfig())

		require.NoError(t, store.Write(ctx, c, "u1", User{Name: "Ada", Email: "ada@example.com"}))
		require.NoError(t, store.Write(ctx, c, "u1", map[string]any{"name": "Grace"}))

		u, err := store.Read[User](ctx, c, "u1")
		require.NoError(t, err)
		assert.Equal(t, &User{Name: "Grace", Email: "ada@example.com"}, u)
	})

	t.Run("will replace the stored document with a struct write", func(t *testing.T) {
		c, _ := newClient(t, baseConfig())

		require.NoError(t, store.Write(ctx, c, "u1", User{Name: "Ada", Email: "ada@example.com"}))
		require.NoError(t, store.Write(ctx, c, "u1", User{Name: "Bob"}))

		u, err := store.Read[User](ctx, c, "u1")
		require.NoError(t, err)
		assert.Equal(t, &User{Name: "Bob"}, u)
	})

	t.Run("will keep ids inside the collection", func(t *testing.T) {
		b := memory.New()
		dial := store.WithDialer(memory.Dialer(b))

		orgs, err := store.New(ctx, "APP", store.WithSource(with(baseConfig(), "APP_COLLECTION", "orgs")), dial)
		require.NoError(t, err)

		err = store.Write(ctx, orgs, "o1/users/u1", User{Name: "Mallory"})
		assert.ErrorIs(t, err, store.ErrWrite)
		assert.ErrorIs(t, err, backend.ErrInvalidLevel)

		_, err = store.Read[User](ctx, orgs, "o1/users/u1")
		assert.ErrorIs(t, err, store.ErrRead)
		assert.ErrorIs(t, err, backend.ErrInvalidLevel)

		nested, err := store.New(ctx, "APP", store.WithSource(with(baseConfig(), "APP_COLLECTION_PATH", "orgs/o1")), dial)
		require.NoError(t, err)

		u, err := store.Read[User](ctx, nested, "u1")
		require.NoError(t, err)
		assert.Nil(t, u)
		assert.Equal(t, 0, b.Len())
	})

	t.Run("will delete a document", func(t *testing.T) {
		c, _ := newClient(t, baseConfig())

		require.NoError(t, store.Write(ctx, c, "u1", User{Name: "Ada"}))
		require.NoError(t, c.Delete(ctx, "u1"))
		require.NoError(t, c.Delete(ctx, "u1"))

		u, err := store.Read[User](ctx, c, "u1")
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("will wrap backend failures", func(t *testing.T) {
		cause := errors.New("unavailable")
		fb := &failingBackend{Backend: memory.New(), err: cause}
		c, err := store.New(ctx, "APP", store.WithSource(baseConfig()), store.WithDialer(func(context.Context, backend.Config) (backend.Backend, error) {
			return fb, nil
		}))
		require.NoError(t, err)

		_, err = store.Read[User](ctx, c, "u1")
		assert.ErrorIs(t, err, store.ErrRead)
		assert.ErrorIs(t, err, cause)

		err = store.Write(ctx, c, "u1", User{})
		assert.ErrorIs(t, err, store.ErrWrite)
		assert.ErrorIs(t, err, cause)

		err = c.Delete(ctx, "u1")
		assert.ErrorIs(t, err, store.ErrDelete)
		assert.ErrorIs(t, err, cause)

		require.NoError(t, c.Close())
		assert.True(t, fb.closed)
	})

	t.Run("will fail when the timeout has passed", func(t *testing.T) {
		c, err := store.New(ctx, "APP",
			store.WithSource(with(baseConfig(), "APP_TIMEOUT", "10ms")),
			store.WithDialer(func(context.Context, backend.Config) (backend.Backend, error) {
				return blockingBackend{memory.New()}, nil
			}),
		)
		require.NoError(t, err)

		err = store.Write(ctx, c, "u1", User{Name: "Ada"})
		assert.ErrorIs(t, err, store.ErrWrite)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestClient_Concurrent(t *testing.T) {
	ctx := context.Background()
	c, b := newClient(t, with(baseConfig(), "APP_COLLECTION_PATH", "a/1/b/2"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i)
			assert.NoError(t, store.Write(ctx, c, id, User{Name: id}))
			u, err := store.Read[User](ctx, c, id)
			assert.NoError(t, err)
			if assert.NotNil(t, u) {
				assert.Equal(t, id, u.Name)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, b.Len())
}

func TestClient_Tracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	c, _ := newClient(t, with(baseConfig(), "APP_COLLECTION_PATH", "a/1"))

	require.NoError(t, store.Write(ctx, c, "u1", User{Name: "Ada"}))
	_, err := store.Read[User](ctx, c, "u1")
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "Client.Write", spans[0].Name())
	assert.Equal(t, "Client.Read", spans[1].Name())

	attrs := spans[1].Attributes()
	assert.Contains(t, attrs, attribute.String("nestdoc.collection", "users"))
	assert.Contains(t, attrs, attribute.String("nestdoc.parent_path", "a/1"))
	assert.Contains(t, attrs, attribute.String("nestdoc.document_id", "u1"))
	assert.Contains(t, attrs, attribute.Bool("nestdoc.found", true))

	t.Run("will record failures on the span", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := c.Delete(cctx, "u1")
		require.Error(t, err)

		spans := sr.Ended()
		last := spans[len(spans)-1]
		assert.Equal(t, "Client.Delete", last.Name())
		assert.Equal(t, codes.Error, last.Status().Code)
		assert.NotEmpty(t, last.Events())
	})
}

func TestClient_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	c, _ := newClient(t, with(baseConfig(), "APP_COLLECTION_PATH", "a/1"), store.WithLogger(logger))
	assert.Contains(t, buf.String(), "client initialized")
	assert.Contains(t, buf.String(), "parent_path=a/1")
	assert.Contains(t, buf.String(), "backend=custom")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Read[User](ctx, c, "u1")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "document operation failed")
}
