package store

import (
	"errors"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Key suffixes, always prefixed with the namespace and "_".
const (
	KeyProjectID      = "PROJECT_ID"
	KeyCredentials    = "CREDENTIALS"
	KeyCollection     = "COLLECTION"
	KeyCollectionPath = "COLLECTION_PATH"
	KeyMaxRetries     = "MAX_RETRIES"
	KeyScopes         = "SCOPES"
	KeyBackend        = "BACKEND"
)

// Source is a flat key/value configuration store.
type Source interface {
	// Lookup returns the value stored under key and whether it is set.
	Lookup(key string) (string, bool)

	// Environ returns every key/value pair the source holds.
	Environ() map[string]string
}

// Env is a Source over the process environment.
type Env struct{}

// Lookup implements Source.
func (Env) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Environ implements Source.
func (Env) Environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		out[k] = v
	}
	return out
}

// Map is an in-memory Source.
type Map map[string]string

// Lookup implements Source.
func (m Map) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Environ implements Source.
func (m Map) Environ() map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CollectionPath is the parsed COLLECTION_PATH value.
type CollectionPath struct {
	// Raw is the value as configured.
	Raw string

	// Tokens alternate collection and document names, outermost first.
	Tokens []string
}

// Tuning holds the optional keys that select and adjust the backend.
type Tuning struct {
	// Backend names the backend to dial: firestore, dynamodb or memory.
	Backend string `env:"BACKEND" envDefault:"firestore"`

	// Endpoint overrides the backend API endpoint.
	Endpoint string `env:"ENDPOINT"`

	// Timeout bounds each Read, Write and Delete. Zero means no bound.
	Timeout time.Duration `env:"TIMEOUT"`

	// The DYNAMO_ keys adjust the DynamoDB key layout. Unset keys keep
	// the dynamo.DefaultConfig values.
	DynamoTable         string `env:"DYNAMO_TABLE"`
	DynamoPartitionKey  string `env:"DYNAMO_PARTITION_KEY"`
	DynamoSortKey       string `env:"DYNAMO_SORT_KEY"`
	DynamoTTLAttribute  string `env:"DYNAMO_TTL_ATTRIBUTE"`
	DynamoShards        int    `env:"DYNAMO_SHARDS"`
	DynamoEventualReads bool   `env:"DYNAMO_EVENTUAL_READS"`
}

// Resolver performs typed lookups of the keys of one namespace.
//
// Required keys fail with ErrMissingConfig when unset. Optional keys fall
// back to a caller supplied default and only fail, with ErrInvalidConfig,
// when a set value cannot be parsed. A key set to the empty string counts
// as unset.
type Resolver struct {
	source    Source
	namespace string
}

// NewResolver creates a Resolver for namespace. A nil src reads the process
// environment.
func NewResolver(src Source, namespace string) *Resolver {
	if src == nil {
		src = Env{}
	}
	return &Resolver{source: src, namespace: namespace}
}

// Key returns the fully scoped key for suffix.
func (r *Resolver) Key(suffix string) string {
	return r.namespace + "_" + suffix
}

// ProjectID returns the required backend project identifier.
func (r *Resolver) ProjectID() (string, error) {
	return r.lookupRequired(KeyProjectID)
}

// Credentials returns the required raw credential material.
func (r *Resolver) Credentials() (string, error) {
	return r.lookupRequired(KeyCredentials)
}

// Collection returns the required target collection name.
func (r *Resolver) Collection() (string, error) {
	return r.lookupRequired(KeyCollection)
}

// MaxRetries returns the configured retry budget, or def when unset.
func (r *Resolver) MaxRetries(def int) (int, error) {
	return lookupParsed(r, KeyMaxRetries, def, func(s string) (int, error) {
		n, err := strconv.ParseUint(s, 10, strconv.IntSize-1)
		return int(n), err
	})
}

// Scopes returns the comma separated OAuth scopes, or def() when unset.
// Segments are trimmed and empty segments are kept.
func (r *Resolver) Scopes(def func() []string) ([]string, error) {
	raw, ok := r.lookupOptional(KeyScopes)
	if !ok {
		if def == nil {
			return nil, nil
		}
		return def(), nil
	}

	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts, nil
}

// CollectionPath returns the parent path tokens, or nil when unset or blank.
// The number of tokens is not checked here.
func (r *Resolver) CollectionPath() (*CollectionPath, error) {
	raw, ok := r.lookupOptional(KeyCollectionPath)
	if !ok {
		return nil, nil
	}

	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return nil, nil
	}

	tokens := strings.Split(trimmed, "/")
	for i, t := range tokens {
		tokens[i] = strings.TrimSpace(t)
	}
	return &CollectionPath{Raw: raw, Tokens: tokens}, nil
}

// Tuning parses the optional backend selection keys.
func (r *Resolver) Tuning() (Tuning, error) {
	var t Tuning
	err := env.ParseWithOptions(&t, env.Options{
		Prefix:      r.Key(""),
		Environment: r.source.Environ(),
	})
	if err != nil {
		return Tuning{}, r.tuningError(err)
	}
	return t, nil
}

// tuningError reports the first field env failed to parse under its key.
func (r *Resolver) tuningError(err error) error {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return invalidConfig("", "", err)
	}
	for _, e := range agg.Errors {
		var pe env.ParseError
		if !errors.As(e, &pe) {
			continue
		}
		field, ok := reflect.TypeOf(Tuning{}).FieldByName(pe.Name)
		if !ok {
			continue
		}
		key := r.Key(field.Tag.Get("env"))
		raw, _ := r.source.Lookup(key)
		return invalidConfig(key, raw, pe.Err)
	}
	return invalidConfig("", "", err)
}

func (r *Resolver) lookupRequired(suffix string) (string, error) {
	v, ok := r.lookupOptional(suffix)
	if !ok {
		return "", missingConfig(r.Key(suffix))
	}
	return v, nil
}

func (r *Resolver) lookupOptional(suffix string) (string, bool) {
	v, ok := r.source.Lookup(r.Key(suffix))
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func lookupParsed[T any](r *Resolver, suffix string, def T, parse func(string) (T, error)) (T, error) {
	raw, ok := r.lookupOptional(suffix)
	if !ok {
		return def, nil
	}

	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, invalidConfig(r.Key(suffix), raw, err)
	}
	return v, nil
}
