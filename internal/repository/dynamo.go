package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/bharathbbg/awb-reconciler/internal/config"
	"github.com/bharathbbg/awb-reconciler/internal/model"
)

// DynamoAPI is the subset of the DynamoDB client the record store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// shipmentItem keeps the record and its history in one item so a clear and
// its deletion marker land in a single UpdateItem.
//
// Table requirements:
//   - PK: order_id (string)
type shipmentItem struct {
	OrderID        string               `dynamodbav:"order_id"`
	AWBNumber      string               `dynamodbav:"awb_number,omitempty"`
	AWBStatus      string               `dynamodbav:"awb_status,omitempty"`
	GenerationDate string               `dynamodbav:"awb_generation_date,omitempty"`
	UpdatedAt      string               `dynamodbav:"updated_at,omitempty"`
	History        []model.HistoryEntry `dynamodbav:"history,omitempty"`
	Version        int64                `dynamodbav:"version"`
}

const appendHistory = "history = list_append(if_not_exists(history, :empty), :entry)"

type DynamoRepository struct {
	ddb   DynamoAPI
	table string
	now   func() time.Time
}

func NewDynamoClient(ctx context.Context, cfg config.DynamoConfig) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		// Local DynamoDB does not validate credentials, but the SDK requires them.
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func NewDynamoRepository(ddb DynamoAPI, table string) *DynamoRepository {
	return &DynamoRepository{ddb: ddb, table: table, now: time.Now}
}

func (r *DynamoRepository) key(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func (r *DynamoRepository) load(ctx context.Context, orderID string) (shipmentItem, error) {
	out, err := r.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            r.key(orderID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return shipmentItem{}, fmt.Errorf("error loading shipment item: %w", err)
	}
	if len(out.Item) == 0 {
		return shipmentItem{OrderID: orderID}, nil
	}

	var it shipmentItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return shipmentItem{}, err
	}
	return it, nil
}

func (r *DynamoRepository) GetRecord(ctx context.Context, orderID string) (model.ShipmentRecord, error) {
	it, err := r.load(ctx, orderID)
	if err != nil {
		return model.ShipmentRecord{}, err
	}
	return it.record(), nil
}

func (r *DynamoRepository) SaveAWB(ctx context.Context, rec model.ShipmentRecord, entry model.HistoryEntry) error {
	vals, err := r.entryValues(entry)
	if err != nil {
		return err
	}
	vals[":awb"] = &types.AttributeValueMemberS{Value: rec.AWBNumber}
	vals[":date"] = &types.AttributeValueMemberS{Value: rec.GenerationDate}

	expr := "SET awb_number = :awb, awb_generation_date = :date, updated_at = :now, " + appendHistory
	if rec.AWBStatus != "" {
		vals[":status"] = &types.AttributeValueMemberS{Value: rec.AWBStatus}
		expr += ", awb_status = :status ADD version :one"
	} else {
		expr += " REMOVE awb_status ADD version :one"
	}

	return r.update(ctx, rec.OrderID, expr, vals, "")
}

// UpdateStatus is a no-op when the AWB was cleared concurrently.
func (r *DynamoRepository) UpdateStatus(ctx context.Context, orderID, status string, entry model.HistoryEntry) error {
	vals, err := r.entryValues(entry)
	if err != nil {
		return err
	}
	vals[":status"] = &types.AttributeValueMemberS{Value: status}

	err = r.update(ctx, orderID,
		"SET awb_status = :status, updated_at = :now, "+appendHistory+" ADD version :one",
		vals, "attribute_exists(awb_number)")
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return nil
	}
	return err
}

// ClearAWB removes number, status and date in one UpdateItem.
func (r *DynamoRepository) ClearAWB(ctx context.Context, orderID string, entry *model.HistoryEntry) error {
	vals := map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberS{Value: r.now().UTC().Format(time.RFC3339)},
		":one": &types.AttributeValueMemberN{Value: "1"},
	}
	set := "SET updated_at = :now"
	if entry != nil {
		var err error
		if vals, err = r.entryValues(*entry); err != nil {
			return err
		}
		set += ", " + appendHistory
	}
	expr := set + " REMOVE awb_number, awb_status, awb_generation_date ADD version :one"
	return r.update(ctx, orderID, expr, vals, "")
}

func (r *DynamoRepository) AppendHistory(ctx context.Context, orderID string, entry model.HistoryEntry) error {
	vals, err := r.entryValues(entry)
	if err != nil {
		return err
	}
	return r.update(ctx, orderID, "SET updated_at = :now, "+appendHistory+" ADD version :one", vals, "")
}

func (r *DynamoRepository) History(ctx context.Context, orderID string) ([]model.HistoryEntry, error) {
	it, err := r.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return it.History, nil
}

// RemoveDeletionMarkers rewrites the history list under an optimistic version check.
func (r *DynamoRepository) RemoveDeletionMarkers(ctx context.Context, orderID string) (int, error) {
	const attempts = 3
	for i := 0; i < attempts; i++ {
		it, err := r.load(ctx, orderID)
		if err != nil {
			return 0, err
		}

		kept := make([]model.HistoryEntry, 0, len(it.History))
		for _, e := range it.History {
			if !e.Action.IsDeletion() {
				kept = append(kept, e)
			}
		}
		removed := len(it.History) - len(kept)
		if removed == 0 {
			return 0, nil
		}

		list, err := attributevalue.Marshal(kept)
		if err != nil {
			return 0, err
		}
		vals := map[string]types.AttributeValue{
			":history": list,
			":v":       &types.AttributeValueMemberN{Value: fmt.Sprint(it.Version)},
			":one":     &types.AttributeValueMemberN{Value: "1"},
		}
		cond := "version = :v"
		if it.Version == 0 {
			cond = "attribute_not_exists(version) OR version = :v"
		}

		err = r.update(ctx, orderID, "SET history = :history ADD version :one", vals, cond)
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return removed, nil
	}
	return 0, fmt.Errorf("error removing deletion markers for %s: concurrent updates", orderID)
}

// ListWithAWB scans for items that carry an AWB, newest first.
func (r *DynamoRepository) ListWithAWB(ctx context.Context, limit int) ([]model.ShipmentRecord, error) {
	p := dynamodb.NewScanPaginator(r.ddb, &dynamodb.ScanInput{
		TableName:            aws.String(r.table),
		FilterExpression:     aws.String("attribute_exists(awb_number)"),
		ProjectionExpression: aws.String("order_id, awb_number, awb_status, awb_generation_date, updated_at"),
	})

	var recs []model.ShipmentRecord
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error scanning shipment items: %w", err)
		}
		var items []shipmentItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			recs = append(recs, it.record())
		}
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].UpdatedAt.After(recs[j].UpdatedAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (r *DynamoRepository) entryValues(entry model.HistoryEntry) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{
		":entry": &types.AttributeValueMemberL{Value: []types.AttributeValue{av}},
		":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
		":now":   &types.AttributeValueMemberS{Value: r.now().UTC().Format(time.RFC3339)},
		":one":   &types.AttributeValueMemberN{Value: "1"},
	}, nil
}

func (r *DynamoRepository) update(ctx context.Context, orderID, expr string, vals map[string]types.AttributeValue, cond string) error {
	in := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       r.key(orderID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: vals,
	}
	if cond != "" {
		in.ConditionExpression = aws.String(cond)
	}
	_, err := r.ddb.UpdateItem(ctx, in)
	if err != nil {
		return fmt.Errorf("error updating shipment item: %w", err)
	}
	return nil
}

func (it shipmentItem) record() model.ShipmentRecord {
	rec := model.ShipmentRecord{
		OrderID:        it.OrderID,
		AWBNumber:      it.AWBNumber,
		AWBStatus:      it.AWBStatus,
		GenerationDate: it.GenerationDate,
	}
	if t, err := time.Parse(time.RFC3339, it.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec
}
