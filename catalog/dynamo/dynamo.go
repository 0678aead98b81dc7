// Package dynamo implements catalog.Catalog on Amazon DynamoDB.
//
// A collection and its segment descriptors share one partition; creation is
// a single transaction whose collection item is conditioned on
// attribute_not_exists, so concurrent creators across processes race safely
// and exactly one wins.
//
// Table schema:
//   - Partition key: collection_id (string)
//   - Sort key: item (string) - "collection" or "segment#<segment-id>"
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name vecseg-catalog \
//	  --attribute-definitions AttributeName=collection_id,AttributeType=S AttributeName=item,AttributeType=S \
//	  --key-schema AttributeName=collection_id,KeyType=HASH AttributeName=item,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/hupe1980/vecseg/catalog"
	"github.com/hupe1980/vecseg/internal/codec"
	"github.com/hupe1980/vecseg/model"
)

const (
	attrCollection = "collection_id"
	attrItem       = "item"
	attrBody       = "body"

	itemCollection = "collection"
	segmentPrefix  = "segment#"
)

// Client is the interface for DynamoDB operations.
type Client interface {
	dynamodb.QueryAPIClient
	dynamodb.ScanAPIClient
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Catalog is a DynamoDB-backed catalog.Catalog.
type Catalog struct {
	client Client
	table  string
	codec  codec.Codec
}

var _ catalog.Catalog = (*Catalog)(nil)

// New creates a catalog on table. A nil codec uses codec.Default.
func New(client Client, table string, c codec.Codec) *Catalog {
	if c == nil {
		c = codec.Default
	}
	return &Catalog{client: client, table: table, codec: c}
}

func key(collectionID uuid.UUID, item string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrCollection: &types.AttributeValueMemberS{Value: collectionID.String()},
		attrItem:       &types.AttributeValueMemberS{Value: item},
	}
}

func (c *Catalog) item(collectionID uuid.UUID, item string, v any) (map[string]types.AttributeValue, error) {
	body, err := c.codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := key(collectionID, item)
	m[attrBody] = &types.AttributeValueMemberS{Value: string(body)}
	return m, nil
}

// CreateCollection implements catalog.Catalog.
func (c *Catalog) CreateCollection(ctx context.Context, col model.Collection, segments []model.Segment) error {
	if err := catalog.ValidateSegments(col, segments); err != nil {
		return err
	}

	colItem, err := c.item(col.ID, itemCollection, col)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", col.ID, err)
	}

	writes := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(c.table),
			Item:                colItem,
			ConditionExpression: aws.String("attribute_not_exists(" + attrCollection + ")"),
		},
	}}
	for _, s := range segments {
		segItem, err := c.item(col.ID, segmentPrefix+s.ID.String(), s)
		if err != nil {
			return fmt.Errorf("encode segment %s: %w", s.ID, err)
		}
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(c.table), Item: segItem},
		})
	}

	_, err = c.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if conditionFailed(err) {
		return fmt.Errorf("collection %s: %w", col.ID, model.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create collection %s: %w", col.ID, err)
	}
	return nil
}

// GetCollection implements catalog.Catalog.
func (c *Catalog) GetCollection(ctx context.Context, id uuid.UUID) (model.Collection, error) {
	resp, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.table),
		Key:            key(id, itemCollection),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.Collection{}, fmt.Errorf("get collection %s: %w", id, err)
	}
	if len(resp.Item) == 0 {
		return model.Collection{}, fmt.Errorf("collection %s: %w", id, model.ErrNotFound)
	}
	var col model.Collection
	if err := c.decode(resp.Item, &col); err != nil {
		return model.Collection{}, err
	}
	return col, nil
}

// ListCollections implements catalog.Catalog.
func (c *Catalog) ListCollections(ctx context.Context) ([]model.Collection, error) {
	paginator := dynamodb.NewScanPaginator(c.client, &dynamodb.ScanInput{
		TableName:                aws.String(c.table),
		FilterExpression:         aws.String("#item = :c"),
		ExpressionAttributeNames: map[string]string{"#item": attrItem},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: itemCollection},
		},
		ConsistentRead: aws.Bool(true),
	})

	var cols []model.Collection
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan collections: %w", err)
		}
		for _, item := range page.Items {
			var col model.Collection
			if err := c.decode(item, &col); err != nil {
				return nil, err
			}
			cols = append(cols, col)
		}
	}
	return cols, nil
}

// GetSegments implements catalog.Catalog.
func (c *Catalog) GetSegments(ctx context.Context, collectionID uuid.UUID) ([]model.Segment, error) {
	if _, err := c.GetCollection(ctx, collectionID); err != nil {
		return nil, err
	}

	paginator := dynamodb.NewQueryPaginator(c.client, &dynamodb.QueryInput{
		TableName:                aws.String(c.table),
		KeyConditionExpression:   aws.String("#pk = :cid AND begins_with(#item, :prefix)"),
		ExpressionAttributeNames: map[string]string{"#pk": attrCollection, "#item": attrItem},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid":    &types.AttributeValueMemberS{Value: collectionID.String()},
			":prefix": &types.AttributeValueMemberS{Value: segmentPrefix},
		},
		ConsistentRead: aws.Bool(true),
	})

	var segments []model.Segment
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query segments of %s: %w", collectionID, err)
		}
		for _, item := range page.Items {
			var s model.Segment
			if err := c.decode(item, &s); err != nil {
				return nil, err
			}
			segments = append(segments, s)
		}
	}
	catalog.SortSegments(segments)
	return segments, nil
}

// GetSegment implements catalog.Catalog.
func (c *Catalog) GetSegment(ctx context.Context, collectionID, segmentID uuid.UUID) (model.Segment, error) {
	segments, err := c.GetSegments(ctx, collectionID)
	if err != nil {
		return model.Segment{}, err
	}
	for _, s := range segments {
		if s.ID == segmentID {
			return s, nil
		}
	}
	return model.Segment{}, fmt.Errorf("segment %s: %w", segmentID, model.ErrNotFound)
}

// DeleteCollection implements catalog.Catalog.
func (c *Catalog) DeleteCollection(ctx context.Context, id uuid.UUID) ([]model.Segment, error) {
	segments, err := c.GetSegments(ctx, id)
	if err != nil {
		return nil, err
	}

	writes := []types.TransactWriteItem{{
		Delete: &types.Delete{
			TableName:           aws.String(c.table),
			Key:                 key(id, itemCollection),
			ConditionExpression: aws.String("attribute_exists(" + attrCollection + ")"),
		},
	}}
	for _, s := range segments {
		writes = append(writes, types.TransactWriteItem{
			Delete: &types.Delete{TableName: aws.String(c.table), Key: key(id, segmentPrefix+s.ID.String())},
		})
	}

	_, err = c.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if conditionFailed(err) {
		return nil, fmt.Errorf("collection %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("delete collection %s: %w", id, err)
	}
	return segments, nil
}

// Reset implements catalog.Catalog.
func (c *Catalog) Reset(ctx context.Context) error {
	paginator := dynamodb.NewScanPaginator(c.client, &dynamodb.ScanInput{
		TableName:            aws.String(c.table),
		ProjectionExpression: aws.String("#pk, #item"),
		ExpressionAttributeNames: map[string]string{
			"#pk": attrCollection, "#item": attrItem,
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan catalog: %w", err)
		}
		for _, item := range page.Items {
			_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(c.table),
				Key: map[string]types.AttributeValue{
					attrCollection: item[attrCollection],
					attrItem:       item[attrItem],
				},
			})
			if err != nil {
				return fmt.Errorf("delete catalog item: %w", err)
			}
		}
	}
	return nil
}

func (c *Catalog) decode(item map[string]types.AttributeValue, v any) error {
	body, ok := item[attrBody].(*types.AttributeValueMemberS)
	if !ok {
		return fmt.Errorf("catalog item %s: %w: missing body", describe(item), model.ErrCorrupt)
	}
	if err := c.codec.Unmarshal([]byte(body.Value), v); err != nil {
		return fmt.Errorf("catalog item %s: %w: %v", describe(item), model.ErrCorrupt, err)
	}
	return nil
}

func describe(item map[string]types.AttributeValue) string {
	var parts []string
	for _, attr := range []string{attrCollection, attrItem} {
		if s, ok := item[attr].(*types.AttributeValueMemberS); ok {
			parts = append(parts, s.Value)
		}
	}
	return strings.Join(parts, "/")
}

// conditionFailed reports whether err is a transaction cancelled by a
// failed condition check.
func conditionFailed(err error) bool {
	if err == nil {
		return false
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
		return false
	}
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
