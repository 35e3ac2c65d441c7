// Package keys derives DynamoDB primary keys for nested documents.
package keys

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Separator joins path segments inside a partition key.
const Separator = "/"

// CollectionPath joins ancestor segments and the collection into "a/1/b/2/users".
func CollectionPath(segments []string, collection string) string {
	if len(segments) == 0 {
		return collection
	}
	return strings.Join(segments, Separator) + Separator + collection
}

// Partition computes the partition key for a document.
// With numShards=1, the key is the plain collection path.
// With numShards>1, documents of one collection are spread across shards
// based on the document id hash, so the key stays derivable on reads.
func Partition(collectionPath, documentID string, numShards int) string {
	if numShards <= 1 {
		return collectionPath
	}
	h := fnv.New32a()
	h.Write([]byte(documentID))
	shard := h.Sum32() % uint32(numShards)
	return fmt.Sprintf("%s#%02x", collectionPath, shard)
}
