// Package store provides a configuration driven client for hierarchical
// document databases.
//
// A [Client] is built from the keys of one namespace. With the namespace
// "APP" the following keys are read:
//
//	APP_PROJECT_ID       required  backend project identifier
//	APP_CREDENTIALS      required  credential material, usually JSON
//	APP_COLLECTION       required  target collection
//	APP_COLLECTION_PATH  optional  parent path, e.g. "orgs/o1/teams/t1"
//	APP_MAX_RETRIES      optional  backend retry budget (default 3)
//	APP_SCOPES           optional  comma separated OAuth scopes
//	APP_BACKEND          optional  firestore (default), dynamodb or memory
//	APP_ENDPOINT         optional  backend endpoint override
//	APP_TIMEOUT          optional  per operation timeout, e.g. "5s"
//
// The dynamodb backend also reads its key layout, falling back to the
// dynamo.DefaultConfig values:
//
//	APP_DYNAMO_TABLE           optional  table name (default PROJECT_ID)
//	APP_DYNAMO_PARTITION_KEY   optional  hash key attribute (default "pk")
//	APP_DYNAMO_SORT_KEY        optional  range key attribute (default "sk")
//	APP_DYNAMO_TTL_ATTRIBUTE   optional  TTL attribute (default "ttl")
//	APP_DYNAMO_SHARDS          optional  partitions per collection, 1 to 256
//	APP_DYNAMO_EVENTUAL_READS  optional  disable strongly consistent reads
//
// # Usage
//
//	c, err := store.New(ctx, "APP")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	err = store.Write(ctx, c, "u1", User{Name: "Ada"})       // replaces u1
//	err = store.Write(ctx, c, "u1", map[string]any{"age": 36}) // merges into u1
//	u, err := store.Read[User](ctx, c, "u1") // nil, nil when absent
//
// # Parent paths
//
// COLLECTION_PATH alternates collection and document names and must hold an
// even number of them. "orgs/o1/teams/t1" with COLLECTION "users" addresses
// documents at orgs/o1/teams/t1/users/{id}.
//
// # Errors
//
// Every error returned is an [*Error]. Match its kind with errors.Is:
//
//   - [ErrMissingConfig] - a required key is unset
//   - [ErrInvalidConfig] - a set value failed to parse
//   - [ErrInvalidCollectionPath] - odd number of path tokens
//   - [ErrInitialize] - the backend could not be opened
//   - [ErrRead], [ErrWrite], [ErrDelete] - a document operation failed
package store
