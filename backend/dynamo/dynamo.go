// Package dynamo implements the nestdoc backend on top of a single DynamoDB table.
//
// Every document lives in one item. The partition key is the collection path
// ("orgs/o1/users"), the sort key is the document id, and the remaining
// attributes are the encoded payload:
//
//	pk              sk    name   email
//	orgs/o1/users   u1    "Ada"  "ada@example.com"
//
// Writes replace the item. A map[string]any payload is a patch instead and
// merges its attributes into the existing item. Items with an expired TTL
// attribute are treated as deleted.
package dynamo

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/nestdoc/backend"
	"github.com/jacentio/nestdoc/internal/keys"
)

// API is the subset of *dynamodb.Client the backend uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Backend provides document operations on a DynamoDB table.
type Backend struct {
	client API
	config Config
}

// New creates a new Backend instance.
func New(client API, config Config) *Backend {
	config.validate()
	return &Backend{
		client: client,
		config: config,
	}
}

// Config returns the effective configuration.
func (b *Backend) Config() Config {
	return b.config
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
	key, err := b.key(req)
	if err != nil {
		return backend.Result{}, err
	}

	switch req.Op {
	case backend.OpGet:
		return b.get(ctx, key, req.Object)
	case backend.OpUpsert:
		if backend.IsPatch(req.Object) {
			return backend.Result{}, b.patch(ctx, key, req.Object)
		}
		return backend.Result{}, b.put(ctx, key, req.Object)
	case backend.OpDelete:
		return backend.Result{}, b.delete(ctx, key)
	default:
		return backend.Result{}, fmt.Errorf("%w: %s", backend.ErrUnsupportedOp, req.Op)
	}
}

// Close implements backend.Backend. The DynamoDB client holds no resources.
func (b *Backend) Close() error {
	return nil
}

// key computes the primary key addressed by req.
func (b *Backend) key(req backend.Request) (map[string]types.AttributeValue, error) {
	var levels backend.Levels
	if req.Parent != nil {
		pp, ok := req.Parent.(*parentPath)
		if !ok || pp.owner != b {
			return nil, backend.ErrForeignParentPath
		}
		levels = pp.levels
	}
	if err := req.Target().Validate(); err != nil {
		return nil, fmt.Errorf("document %q/%q: %w", req.Collection, req.DocumentID, err)
	}

	collectionPath := keys.CollectionPath(levels.Segments(), req.Collection)
	return map[string]types.AttributeValue{
		b.config.PartitionKey: &types.AttributeValueMemberS{
			Value: keys.Partition(collectionPath, req.DocumentID, b.config.NumShards),
		},
		b.config.SortKey: &types.AttributeValueMemberS{Value: req.DocumentID},
	}, nil
}

func (b *Backend) get(ctx context.Context, key map[string]types.AttributeValue, into any) (backend.Result, error) {
	result, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.config.Table),
		Key:            key,
		ConsistentRead: aws.Bool(!b.config.EventualReads),
	})
	if err != nil {
		return backend.Result{}, err
	}
	if result.Item == nil {
		return backend.Result{}, nil
	}

	// Check if document is deleted (has expired TTL)
	if IsExpired(result.Item, b.config.TTLAttribute) {
		return backend.Result{}, nil
	}

	item := make(map[string]types.AttributeValue, len(result.Item))
	for k, v := range result.Item {
		if b.isManaged(k) {
			continue
		}
		item[k] = v
	}
	if err := attributevalue.UnmarshalMap(item, into); err != nil {
		return backend.Result{}, fmt.Errorf("unmarshal item: %w", err)
	}
	return backend.Result{Found: true}, nil
}

// put writes obj as the whole item. Stored attributes missing from obj,
// the TTL included, are dropped.
func (b *Backend) put(ctx context.Context, key map[string]types.AttributeValue, obj any) error {
	payload, err := marshalItem(obj)
	if err != nil {
		return err
	}

	item := make(map[string]types.AttributeValue, len(payload)+len(key))
	for k, v := range payload {
		if b.isManaged(k) {
			continue
		}
		item[k] = v
	}
	for k, v := range key {
		item[k] = v
	}

	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.config.Table),
		Item:      item,
	})
	return err
}

// patch sets every payload attribute on the item, creating it when absent,
// and clears the TTL so a previously deleted document comes back to life.
func (b *Backend) patch(ctx context.Context, key map[string]types.AttributeValue, obj any) error {
	item, err := marshalItem(obj)
	if err != nil {
		return err
	}

	var setClauses []string
	exprNames := map[string]string{
		"#ttl": b.config.TTLAttribute,
	}
	exprValues := map[string]types.AttributeValue{}

	// Sorted for a stable update expression.
	for i, k := range slices.Sorted(maps.Keys(item)) {
		if b.isManaged(k) {
			continue
		}
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		exprNames[nameKey] = k
		exprValues[valueKey] = item[k]
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}

	updateExpr := "REMOVE #ttl"
	if len(setClauses) > 0 {
		updateExpr = "SET " + strings.Join(setClauses, ", ") + " " + updateExpr
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                aws.String(b.config.Table),
		Key:                      key,
		UpdateExpression:         aws.String(updateExpr),
		ExpressionAttributeNames: exprNames,
	}
	if len(exprValues) > 0 {
		input.ExpressionAttributeValues = exprValues
	}

	_, err = b.client.UpdateItem(ctx, input)
	return err
}

func (b *Backend) delete(ctx context.Context, key map[string]types.AttributeValue) error {
	_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.config.Table),
		Key:       key,
	})
	return err
}

func marshalItem(obj any) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("marshal item: %T does not encode as a map", obj)
	}
	return m.Value, nil
}

// isManaged reports whether attr is owned by the key layout rather than the payload.
func (b *Backend) isManaged(attr string) bool {
	return attr == b.config.PartitionKey || attr == b.config.SortKey || attr == b.config.TTLAttribute
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
