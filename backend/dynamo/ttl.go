package dynamo

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsExpired checks if an item carries a TTL attribute that has already passed.
func IsExpired(item map[string]types.AttributeValue, ttlAttr string) bool {
	ttlAttrValue, exists := item[ttlAttr]
	if !exists {
		return false // No TTL = active
	}
	ttlNum, ok := ttlAttrValue.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= time.Now().Unix()
}
