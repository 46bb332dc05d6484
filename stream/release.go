// Package stream provides DynamoDB Streams handlers that keep relations consistent
// when parent records are soft-deleted.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/onetomany/store"
)

// Relations sets the children of a parent. *relation.Manager satisfies it.
type Relations interface {
	SetRelations(ctx context.Context, parent *store.Record, rel store.Relation, ids []string) (bool, error)
}

// Handler processes DynamoDB stream events for parent deletes.
type Handler struct {
	relations  Relations
	registry   *store.Registry
	logger     *slog.Logger
	tableTypes map[string]string // table name -> record type
}

// NewHandler creates a new stream handler.
func NewHandler(relations Relations, registry *store.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		relations: relations,
		registry:  registry,
		logger:    logger,
	}
}

// WithTables lets the handler resolve parents without an entity_ref from the
// event's source table and key. tables maps record types to table names.
func (h *Handler) WithTables(tables map[string]string) *Handler {
	h.tableTypes = make(map[string]string, len(tables))
	for typ, table := range tables {
		h.tableTypes[table] = typ
	}
	return h
}

// HandleParentDeleted releases the children of parents whose TTL was just set.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleParentDeleted(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	// Only process MODIFY events where TTL was added
	if record.EventName != "MODIFY" {
		return nil
	}

	oldTTL := getNumberAttr(record.Change.OldImage, "ttl")
	newTTL := getNumberAttr(record.Change.NewImage, "ttl")

	// Only process when TTL is newly set (was absent/0, now present)
	if oldTTL != 0 || newTTL == 0 {
		return nil
	}

	typ, id, ok := h.parentOf(record)
	if !ok {
		h.logger.Warn("skipping record without entity ref",
			"eventID", record.EventID,
			"eventSourceArn", record.EventSourceArn,
		)
		return nil
	}
	entityRef := store.Ref(typ, id)

	rels := h.registry.ChildrenOf(typ)
	if len(rels) == 0 {
		return nil
	}

	h.logger.Info("releasing children of deleted parent",
		"entityRef", entityRef,
		"ttl", newTTL,
		"relations", len(rels),
	)

	parent := &store.Record{Type: typ, ID: id}
	for _, rel := range rels {
		if _, err := h.relations.SetRelations(ctx, parent, rel, nil); err != nil {
			return fmt.Errorf("release %s children of %s: %w", rel.ChildType, entityRef, err)
		}
	}

	h.logger.Info("children released",
		"entityRef", entityRef,
		"relations", len(rels),
	)

	return nil
}

// parentOf resolves the deleted record from its entity_ref, falling back to the
// source table and the "id" key for items the store never wrote.
func (h *Handler) parentOf(record events.DynamoDBEventRecord) (typ, id string, ok bool) {
	if typ, id, ok := store.ParseRef(getStringAttr(record.Change.NewImage, "entity_ref")); ok {
		return typ, id, true
	}
	typ, ok = h.tableTypes[tableFromARN(record.EventSourceArn)]
	id = getStringAttr(record.Change.Keys, "id")
	if !ok || id == "" {
		return "", "", false
	}
	return typ, id, true
}

// tableFromARN extracts the table name from a stream ARN
// (arn:aws:dynamodb:<region>:<account>:table/<name>/stream/<label>).
func tableFromARN(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}
