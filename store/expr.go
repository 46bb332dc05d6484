package store

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// maxInOperands is DynamoDB's limit on the right-hand side of IN.
const maxInOperands = 100

// placeholders returns n value placeholders ":<prefix>0, :<prefix>1, ...".
func placeholders(prefix string, from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(":%s%d", prefix, from+i)
	}
	return out
}

// notInFilter builds a filter excluding ids from the "id" attribute.
// IDs are split into groups of maxInOperands joined with AND.
// Returns an empty expression for no ids.
func notInFilter(ids []string) (string, map[string]string, map[string]types.AttributeValue) {
	if len(ids) == 0 {
		return "", nil, nil
	}
	values := make(map[string]types.AttributeValue, len(ids))
	var clauses []string
	for start := 0; start < len(ids); start += maxInOperands {
		end := min(start+maxInOperands, len(ids))
		ph := placeholders("x", start, end-start)
		for i, id := range ids[start:end] {
			values[ph[i]] = &types.AttributeValueMemberS{Value: id}
		}
		clauses = append(clauses, fmt.Sprintf("NOT (#id IN (%s))", strings.Join(ph, ", ")))
	}
	return strings.Join(clauses, " AND "), map[string]string{"#id": "id"}, values
}

// andFilters joins non-empty filter expressions with AND.
func andFilters(exprs ...string) string {
	var parts []string
	for _, e := range exprs {
		if e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, " AND ")
}

// Attribute names for the per-relation link of a record.
func refAttr(parentType string) string   { return "ref_" + parentType }
func posAttr(parentType string) string   { return "pos_" + parentType }
func shardAttr(parentType string) string { return "shard_" + parentType }

// parentExists guards the parent touch of StoreOwned.
// Soft-deleted parents still pass so their children can be released.
const parentExists = "attribute_exists(id)"

func mergeExprNames(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

func mergeExprValues(maps ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}
