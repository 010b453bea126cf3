// Package dynamostore keeps counter records as DynamoDB items {key: S, views: N}.
package dynamostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/tckz/viewcounter/internal/counter"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
)

const AttrKey = "key"

// ErrThrottled marks store failures caused by capacity or request-rate limits.
var ErrThrottled = errors.New("dynamodb throttled")

var throttleCodes = map[string]struct{}{
	"ProvisionedThroughputExceededException": {},
	"ThrottlingException":                    {},
	"RequestLimitExceeded":                   {},
	"LimitExceededException":                 {},
}

// API is the subset of *dynamodb.Client used here.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

type Config struct {
	Table string
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string
	Region   string
}

type Store struct {
	api   API
	table string
}

func NewClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("config.LoadDefaultConfig: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func New(api API, table string) *Store {
	return &Store{api: api, table: table}
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrKey: &types.AttributeValueMemberS{Value: key},
	}
}

// Increment uses ADD, which creates the item and attribute when absent.
// The condition rejects an existing item whose views is missing, not a number or negative.
func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 itemKey(key),
		UpdateExpression:    aws.String("ADD #v :one"),
		ConditionExpression: aws.String("attribute_not_exists(#k) OR (attribute_type(#v, :n) AND #v >= :zero)"),
		ExpressionAttributeNames: map[string]string{
			"#k": AttrKey,
			"#v": counter.FieldViews,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":n":    &types.AttributeValueMemberS{Value: string(types.ScalarAttributeTypeN)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, fmt.Errorf("%w: key=%s, %s is missing or malformed", counter.ErrDataCorruption, key, counter.FieldViews)
		}
		return 0, classify("dynamodb.UpdateItem", err)
	}

	cur, err := decode(key, out.Attributes)
	if err != nil {
		return 0, err
	}
	return cur.Views(), nil
}

func (s *Store) Get(ctx context.Context, key string) (counter.Lookup, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return counter.Lookup{}, classify("dynamodb.GetItem", err)
	}
	if out.Item == nil {
		return counter.NotFound(key), nil
	}
	return decode(key, out.Item)
}

func (s *Store) CompareAndSwap(ctx context.Context, prior counter.Lookup, next counter.Record) (bool, error) {
	in := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			AttrKey:            &types.AttributeValueMemberS{Value: next.Key},
			counter.FieldViews: &types.AttributeValueMemberN{Value: fmt.Sprint(next.Views)},
		},
	}
	if prior.Found {
		in.ConditionExpression = aws.String("#v = :prior")
		in.ExpressionAttributeNames = map[string]string{"#v": counter.FieldViews}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prior": &types.AttributeValueMemberN{Value: fmt.Sprint(prior.Record.Views)},
		}
	} else {
		in.ConditionExpression = aws.String("attribute_not_exists(#k)")
		in.ExpressionAttributeNames = map[string]string{"#k": AttrKey}
	}

	if _, err := s.api.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, classify("dynamodb.PutItem", err)
	}
	return true, nil
}

func decode(key string, item map[string]types.AttributeValue) (counter.Lookup, error) {
	switch v := item[counter.FieldViews].(type) {
	case *types.AttributeValueMemberN:
		n, err := counter.ParseViewsString(key, v.Value)
		if err != nil {
			return counter.Lookup{}, err
		}
		return counter.Found(key, n), nil
	case nil:
		return counter.Lookup{}, fmt.Errorf("%w: key=%s, %s is missing", counter.ErrDataCorruption, key, counter.FieldViews)
	default:
		return counter.Lookup{}, fmt.Errorf("%w: key=%s, %s has type %T", counter.ErrDataCorruption, key, counter.FieldViews, v)
	}
}

func classify(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := throttleCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%w: %s: %w: %w", counter.ErrStoreUnavailable, op, ErrThrottled, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", counter.ErrStoreUnavailable, op, err)
}
