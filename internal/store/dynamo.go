package store

import (
	"context"
	"path"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// DynamoAPI is the subset of the DynamoDB client the backend uses.
type DynamoAPI interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	dynamodb.QueryAPIClient
}

// dynamoItem is one record. pk is the key's directory (the collection),
// sk its last segment, so listing a collection is a single Query.
type dynamoItem struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	Body      []byte `dynamodbav:"body"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// DynamoBackend stores records in a table keyed by (pk, sk). Single item
// writes are atomic.
type DynamoBackend struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

func NewDynamoBackend(client DynamoAPI, table string) (*DynamoBackend, error) {
	if client == nil {
		return nil, xerrors.New("dynamodb client is required")
	}
	if table == "" {
		return nil, xerrors.New("dynamodb table is required")
	}
	return &DynamoBackend{client: client, table: table, now: time.Now}, nil
}

func (d *DynamoBackend) Name() string { return "dynamodb" }

func splitKey(key string) (pk, sk string) {
	return path.Dir(key), path.Base(key)
}

func itemKey(key string) map[string]types.AttributeValue {
	pk, sk := splitKey(key)
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

// Ensure checks the table exists; tables are provisioned outside the app.
func (d *DynamoBackend) Ensure(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)})
	if err != nil {
		return xerrors.Wrapf(err, "describe table %s", d.table)
	}
	return nil
}

func (d *DynamoBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get item %s", key)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var it dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, xerrors.Wrapf(err, "unmarshal item %s", key)
	}
	return it.Body, nil
}

func (d *DynamoBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	pk, sk := splitKey(key)
	item, err := attributevalue.MarshalMap(dynamoItem{
		PK:        pk,
		SK:        sk,
		Body:      data,
		UpdatedAt: d.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return xerrors.Wrapf(err, "marshal item %s", key)
	}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	}); err != nil {
		return xerrors.Wrapf(err, "put item %s", key)
	}
	return nil
}

// Delete is idempotent: DeleteItem succeeds for absent keys.
func (d *DynamoBackend) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       itemKey(key),
	}); err != nil {
		return xerrors.Wrapf(err, "delete item %s", key)
	}
	return nil
}

func (d *DynamoBackend) List(ctx context.Context, dir string) ([]string, error) {
	if err := checkKey(dir); err != nil {
		return nil, err
	}
	pager := dynamodb.NewQueryPaginator(d.client, &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ProjectionExpression:   aws.String("#sk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "pk",
			"#sk": "sk",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: dir},
		},
		ConsistentRead: aws.Bool(true),
	})

	var keys []string
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, xerrors.Wrapf(err, "query collection %s", dir)
		}
		for _, raw := range page.Items {
			var it struct {
				SK string `dynamodbav:"sk"`
			}
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				return nil, xerrors.Wrapf(err, "unmarshal key in %s", dir)
			}
			keys = append(keys, path.Join(dir, it.SK))
		}
	}
	sort.Strings(keys)
	return keys, nil
}
