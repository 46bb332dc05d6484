package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/jacentio/onetomany/internal/shard"
)

// maxTransactItems is DynamoDB's limit on items per TransactWriteItems call.
const maxTransactItems = 100

// Client is the subset of the DynamoDB API used by Store.
// *dynamodb.Client satisfies it.
type Client interface {
	dynamodb.QueryAPIClient
	dynamodb.ScanAPIClient
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store provides DynamoDB-backed record storage with per-parent child indexes.
type Store struct {
	client Client
	config Config
	now    func() time.Time
}

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// Config returns the validated store configuration.
func (s *Store) Config() Config {
	return s.config
}

// table returns the table name for a record type.
func (s *Store) table(typ string) (string, error) {
	table, ok := s.config.Tables[typ]
	if !ok || table == "" {
		return "", UnknownType(typ)
	}
	return table, nil
}

// parentKey computes the sharded parent index partition key for a child.
func (s *Store) parentKey(parentType, parentID, childID string) string {
	return shard.ParentKey(Ref(parentType, parentID), childID, s.config.NumShards)
}

// Load retrieves a record by type and ID, returning ErrNotFound if deleted or missing.
func (s *Store) Load(ctx context.Context, typ, id string) (*Record, error) {
	table, err := s.table(typ)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       recordKey(id),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, NotFound(typ, id)
	}

	// Check if record is deleted (has expired TTL)
	if IsDeleted(result.Item, s.now()) {
		return nil, NotFound(typ, id)
	}

	return unmarshalRecord(typ, result.Item), nil
}

// FindAll returns every live record of a type in insertion order.
func (s *Store) FindAll(ctx context.Context, typ string) ([]*Record, error) {
	return s.Find(ctx, Query{Type: typ})
}

// Find returns the records matching q with automatic TTL filtering.
// Queries with a ParentID read the parent index; others scan the type's table.
func (s *Store) Find(ctx context.Context, q Query) ([]*Record, error) {
	table, err := s.table(q.Type)
	if err != nil {
		return nil, err
	}
	if (q.ParentID != "" || hasOrder(q, OrderPosition)) && q.ParentType == "" {
		return nil, fmt.Errorf("%w: query on %q needs a parent type", ErrValidation, q.Type)
	}

	var records []*Record
	if q.ParentID != "" {
		records, err = s.queryParent(ctx, table, q)
	} else {
		records, err = s.scan(ctx, table, q)
	}
	if err != nil {
		return nil, err
	}

	// Natural order is by ID; the stable sort keeps it for equal keys.
	sort.SliceStable(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	SortRecords(records, q)
	return records, nil
}

// scan reads a whole table, excluding deleted items and q.ExcludeIDs.
func (s *Store) scan(ctx context.Context, table string, q Query) ([]*Record, error) {
	live, liveNames, liveValues := liveFilter(s.now())
	notIn, notInNames, notInValues := notInFilter(q.ExcludeIDs)

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(table),
		FilterExpression:          aws.String(andFilters(live, notIn)),
		ExpressionAttributeNames:  mergeExprNames(liveNames, notInNames),
		ExpressionAttributeValues: mergeExprValues(liveValues, notInValues),
	}

	var records []*Record
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			records = append(records, unmarshalRecord(q.Type, raw))
		}
	}
	return records, nil
}

// queryParent reads the parent index for q.ParentType across all shards.
func (s *Store) queryParent(ctx context.Context, table string, q Query) ([]*Record, error) {
	keys := shard.ParentKeys(Ref(q.ParentType, q.ParentID), s.config.NumShards)

	// Fast path for single shard (default)
	if len(keys) == 1 {
		return s.queryShard(ctx, table, keys[0], q)
	}

	// Multi-shard fan-out
	var mu sync.Mutex
	var all []*Record
	var wg sync.WaitGroup
	errs := make(chan error, len(keys))

	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()

			records, err := s.queryShard(ctx, table, key, q)
			if err != nil {
				errs <- fmt.Errorf("shard %s: %w", key, err)
				return
			}

			mu.Lock()
			all = append(all, records...)
			mu.Unlock()
		}(key)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return all, nil
}

func (s *Store) queryShard(ctx context.Context, table, key string, q Query) ([]*Record, error) {
	live, liveNames, liveValues := liveFilter(s.now())
	notIn, notInNames, notInValues := notInFilter(q.ExcludeIDs)

	input := &dynamodb.QueryInput{
		TableName:              aws.String(table),
		IndexName:              aws.String(s.config.IndexName(q.ParentType)),
		KeyConditionExpression: aws.String("#shard = :pk"),
		FilterExpression:       aws.String(andFilters(live, notIn)),
		ExpressionAttributeNames: mergeExprNames(
			liveNames,
			notInNames,
			map[string]string{"#shard": shardAttr(q.ParentType)},
		),
		ExpressionAttributeValues: mergeExprValues(
			liveValues,
			notInValues,
			map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: key}},
		),
		ScanIndexForward: aws.Bool(true),
	}

	var records []*Record
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			records = append(records, unmarshalRecord(q.Type, raw))
		}
	}
	return records, nil
}

// Store upserts records in one transaction per batch of 100.
// Only managed attributes are written; host attributes on the item are left alone.
func (s *Store) Store(ctx context.Context, records ...*Record) error {
	if len(records) == 0 {
		return nil
	}
	now := s.now()

	items := make([]types.TransactWriteItem, 0, len(records))
	for _, r := range records {
		item, err := s.updateItem(r, now)
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	return s.transact(ctx, items, nil)
}

// StoreOwned makes owned the complete set of parent's children of childType.
// Children currently linked to parent but absent from owned are detached
// (reference removed, position 0). The parent is touched in the same batch and
// must exist, otherwise ErrNotFound is returned.
func (s *Store) StoreOwned(ctx context.Context, parent *Record, childType string, owned []*Record) error {
	if parent == nil || parent.ID == "" {
		return fmt.Errorf("%w: parent record without id", ErrValidation)
	}
	parentTable, err := s.table(parent.Type)
	if err != nil {
		return err
	}

	current, err := s.Find(ctx, Query{Type: childType, ParentType: parent.Type, ParentID: parent.ID})
	if err != nil {
		return err
	}

	keep := mapset.NewThreadUnsafeSet[string]()
	for _, r := range owned {
		keep.Add(r.ID)
	}
	batch := append([]*Record{}, owned...)
	for _, c := range current {
		if !keep.Contains(c.ID) {
			c.Detach(parent.Type)
			batch = append(batch, c)
		}
	}

	now := s.now()
	items := make([]types.TransactWriteItem, 0, len(batch)+1)

	// 1. Touch the parent, failing the batch if it doesn't exist.
	// Host-created parents gain the entity_ref the stream handler reads.
	items = append(items, types.TransactWriteItem{
		Update: &types.Update{
			TableName:           aws.String(parentTable),
			Key:                 recordKey(parent.ID),
			UpdateExpression:    aws.String("SET #updated_at = :now, #entity_ref = if_not_exists(#entity_ref, :entity_ref)"),
			ConditionExpression: aws.String(parentExists),
			ExpressionAttributeNames: map[string]string{
				"#updated_at": "updated_at",
				"#entity_ref": "entity_ref",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now":        &types.AttributeValueMemberS{Value: formatTime(now)},
				":entity_ref": &types.AttributeValueMemberS{Value: parent.Ref()},
			},
		},
	})

	// 2. Write owned and released children
	for _, r := range batch {
		item, err := s.updateItem(r, now)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	return s.transact(ctx, items, parent)
}

// updateItem builds the upsert for a record's managed attributes and links.
func (s *Store) updateItem(r *Record, now time.Time) (types.TransactWriteItem, error) {
	table, err := s.table(r.Type)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	if r.ID == "" {
		return types.TransactWriteItem{}, fmt.Errorf("%w: %s record without id", ErrValidation, r.Type)
	}

	exprNames := map[string]string{
		"#entity_ref": "entity_ref",
		"#title":      "title",
		"#created_at": "created_at",
		"#updated_at": "updated_at",
	}
	exprValues := map[string]types.AttributeValue{
		":entity_ref": &types.AttributeValueMemberS{Value: r.Ref()},
		":title":      &types.AttributeValueMemberS{Value: r.Title},
		":now":        &types.AttributeValueMemberS{Value: formatTime(now)},
	}
	setClauses := []string{
		"#entity_ref = :entity_ref",
		"#title = :title",
		"#created_at = if_not_exists(#created_at, :now)",
		"#updated_at = :now",
	}
	var removeClauses []string

	// Links in parent type order so expressions are deterministic
	parentTypes := make([]string, 0, len(r.Links))
	for pt := range r.Links {
		parentTypes = append(parentTypes, pt)
	}
	sort.Strings(parentTypes)

	for i, pt := range parentTypes {
		link := r.Links[pt]
		refKey := fmt.Sprintf("#ref%d", i)
		posKey := fmt.Sprintf("#pos%d", i)
		shardKey := fmt.Sprintf("#shard%d", i)
		exprNames[refKey] = refAttr(pt)
		exprNames[posKey] = posAttr(pt)
		exprNames[shardKey] = shardAttr(pt)

		posVal := fmt.Sprintf(":pos%d", i)
		exprValues[posVal] = &types.AttributeValueMemberN{Value: strconv.Itoa(link.Position)}
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", posKey, posVal))

		if !link.Attached() {
			removeClauses = append(removeClauses, refKey, shardKey)
			continue
		}
		refVal := fmt.Sprintf(":ref%d", i)
		shardVal := fmt.Sprintf(":shard%d", i)
		exprValues[refVal] = &types.AttributeValueMemberS{Value: link.ParentID}
		exprValues[shardVal] = &types.AttributeValueMemberS{Value: s.parentKey(pt, link.ParentID, r.ID)}
		setClauses = append(setClauses,
			fmt.Sprintf("%s = %s", refKey, refVal),
			fmt.Sprintf("%s = %s", shardKey, shardVal),
		)
	}

	updateExpr := "SET " + strings.Join(setClauses, ", ")
	if len(removeClauses) > 0 {
		updateExpr += " REMOVE " + strings.Join(removeClauses, ", ")
	}

	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 aws.String(table),
			Key:                       recordKey(r.ID),
			UpdateExpression:          aws.String(updateExpr),
			ExpressionAttributeNames:  exprNames,
			ExpressionAttributeValues: exprValues,
		},
	}, nil
}

// transact executes items in chunks of maxTransactItems.
// Chunks are atomic individually, not with each other.
// When parent is non-nil, item 0 is its existence check.
func (s *Store) transact(ctx context.Context, items []types.TransactWriteItem, parent *Record) error {
	for start := 0; start < len(items); start += maxTransactItems {
		end := min(start+maxTransactItems, len(items))
		_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items[start:end],
		})
		parentIndex := -1
		if parent != nil && start == 0 {
			parentIndex = 0
		}
		if err := s.mapTransactionError(err, parentIndex, parent); err != nil {
			return err
		}
	}
	return nil
}

// mapTransactionError maps DynamoDB transaction errors.
// parentIndex is the index of the parent check item (-1 if none).
func (s *Store) mapTransactionError(err error, parentIndex int, parent *Record) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) && parentIndex >= 0 && parentIndex < len(txErr.CancellationReasons) {
		reason := txErr.CancellationReasons[parentIndex]
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return NotFound(parent.Type, parent.ID)
		}
	}

	return Persistence(err)
}

// recordKey returns the primary key for a record ID.
func recordKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

// itemHeader holds the fixed managed attributes of a record item.
type itemHeader struct {
	ID        string `dynamodbav:"id"`
	Title     string `dynamodbav:"title"`
	CreatedAt string `dynamodbav:"created_at"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// unmarshalRecord converts a DynamoDB item to a Record.
func unmarshalRecord(typ string, raw map[string]types.AttributeValue) *Record {
	var h itemHeader
	// Items written by hosts may carry other shapes; read what decodes.
	_ = attributevalue.UnmarshalMap(raw, &h)

	r := &Record{
		Type:      typ,
		ID:        h.ID,
		Title:     h.Title,
		CreatedAt: parseTime(h.CreatedAt),
		UpdatedAt: parseTime(h.UpdatedAt),
	}

	for k, v := range raw {
		pt, ok := strings.CutPrefix(k, "ref_")
		if !ok {
			continue
		}
		ref, ok := v.(*types.AttributeValueMemberS)
		if !ok || ref.Value == "" {
			continue
		}
		link := Link{ParentID: ref.Value}
		if pos, ok := raw[posAttr(pt)].(*types.AttributeValueMemberN); ok {
			link.Position, _ = strconv.Atoi(pos.Value)
		}
		r.Attach(pt, link.ParentID, link.Position)
	}

	return r
}

func hasOrder(q Query, o Order) bool {
	for _, x := range q.OrderBy {
		if x == o {
			return true
		}
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
