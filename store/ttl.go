package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ttlAttr is the host's soft-delete attribute, a unix time in seconds.
// From that time on the item is invisible to Load and Find.
const ttlAttr = "ttl"

// IsDeleted reports whether item was soft-deleted at or before now.
// A ttl that is not a number is ignored.
func IsDeleted(item map[string]types.AttributeValue, now time.Time) bool {
	n, ok := item[ttlAttr].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(n.Value, 10, 64)
	return err == nil && ttl <= now.Unix()
}

// liveFilter keeps items without a ttl or with one after now.
func liveFilter(now time.Time) (string, map[string]string, map[string]types.AttributeValue) {
	return "(attribute_not_exists(#ttl) OR #ttl > :now)",
		map[string]string{"#ttl": ttlAttr},
		map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		}
}
