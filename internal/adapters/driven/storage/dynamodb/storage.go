// Package dynamodb implements driven.Storage on a single DynamoDB table.
//
// Every record is one item. The partition key is the first path segment
// ("trees", "content") and the sort key is the full path, so List is a
// begins_with query inside one partition.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

// Client is the subset of the DynamoDB API the storage uses.
type Client interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// record is the item layout.
type record struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      []byte `dynamodbav:"Data"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
}

// Storage stores records in a DynamoDB table.
type Storage struct {
	client Client
	table  string
}

var _ driven.Storage = (*Storage)(nil)

// New returns a Storage writing to table through client.
func New(client Client, table string) *Storage {
	return &Storage{client: client, table: table}
}

// NewFromConfig loads the default AWS configuration for region and returns
// a Storage using a real DynamoDB client. A non-empty endpoint overrides the
// service endpoint, for DynamoDB Local.
func NewFromConfig(ctx context.Context, table, region, endpoint string) (*Storage, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(client, table), nil
}

func partition(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

func key(path string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: partition(path)},
		"SK": &types.AttributeValueMemberS{Value: path},
	}
}

func failure(op, path string, err error) error {
	return fmt.Errorf("%s %s: %w", op, path, errors.Join(domain.ErrStorageFailure, err))
}

// Read returns the record at path.
func (s *Storage) Read(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(path),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, failure("read", path, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	}
	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, failure("read", path, err)
	}
	return rec.Data, nil
}

// Write stores data at path, replacing any existing item.
func (s *Storage) Write(ctx context.Context, path string, data []byte) error {
	item, err := attributevalue.MarshalMap(record{
		PK:        partition(path),
		SK:        path,
		Data:      data,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return failure("write", path, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return failure("write", path, err)
	}
	return nil
}

// Delete removes the item at path. Missing items are not an error.
func (s *Storage) Delete(ctx context.Context, path string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       key(path),
	}); err != nil {
		return failure("delete", path, err)
	}
	return nil
}

// Exists reports whether an item exists at path.
func (s *Storage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.Read(ctx, path)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// List returns every path starting with prefix, sorted. Prefixes without a
// slash span partitions and fall back to a scan.
func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var (
		paths []string
		err   error
	)
	if strings.Contains(prefix, "/") {
		paths, err = s.query(ctx, prefix)
	} else {
		paths, err = s.scan(ctx, prefix)
	}
	if err != nil {
		return nil, failure("list", prefix, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Storage) query(ctx context.Context, prefix string) ([]string, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(partition(prefix))).
		And(expression.Key("SK").BeginsWith(prefix))
	expr, err := expression.NewBuilder().
		WithKeyCondition(keyCond).
		WithProjection(expression.NamesList(expression.Name("SK"))).
		Build()
	if err != nil {
		return nil, err
	}

	var (
		paths            []string
		lastEvaluatedKey map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ProjectionExpression:      expr.Projection(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastEvaluatedKey,
		})
		if err != nil {
			return nil, err
		}
		paths, err = appendKeys(paths, out.Items)
		if err != nil {
			return nil, err
		}
		lastEvaluatedKey = out.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			break
		}
	}
	return paths, nil
}

func (s *Storage) scan(ctx context.Context, prefix string) ([]string, error) {
	builder := expression.NewBuilder().
		WithProjection(expression.NamesList(expression.Name("SK")))
	if prefix != "" {
		builder = builder.WithFilter(expression.Name("SK").BeginsWith(prefix))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, err
	}

	var (
		paths            []string
		lastEvaluatedKey map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.table),
			FilterExpression:          expr.Filter(),
			ProjectionExpression:      expr.Projection(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastEvaluatedKey,
		})
		if err != nil {
			return nil, err
		}
		paths, err = appendKeys(paths, out.Items)
		if err != nil {
			return nil, err
		}
		lastEvaluatedKey = out.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			break
		}
	}
	return paths, nil
}

func appendKeys(paths []string, items []map[string]types.AttributeValue) ([]string, error) {
	for _, item := range items {
		var rec record
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, err
		}
		paths = append(paths, rec.SK)
	}
	return paths, nil
}
