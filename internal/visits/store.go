// Package visits owns the visit ledger: at most one visit per
// (identity, cat) pair, enforced with a conditional create. The ledger is
// the source of truth for "has this identity seen this cat"; the cat's
// visit counter is derived from it.
package visits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/whiskermap/go-catmap-backend/internal/aws"
	"github.com/whiskermap/go-catmap-backend/internal/core"
)

// catIndex projects the ledger by cat for recounts. PK cat_id.
const catIndex = "cat-index"

// Visit is the item stored in the visits table.
type Visit struct {
	Identity  string    `dynamodbav:"identity"` // PK: user id or anonymous id
	CatID     string    `dynamodbav:"cat_id"`   // SK
	CreatedAt time.Time `dynamodbav:"created_at"`
}

// Store encapsulates operations on the visits table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a visits Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// Create records a visit if none exists for the pair.
// Returns (true, nil) when the visit was created, (false, nil) when the
// pair already existed. Safe to retry: the duplicate path has no side
// effects.
func (s *Store) Create(ctx context.Context, identity, catID string) (bool, error) {
	v := Visit{Identity: identity, CatID: catID, CreatedAt: s.nowFunc().UTC()}
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return false, fmt.Errorf("marshal visit: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(identity)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, core.WrapStorage("put visit", err)
	}
	return true, nil
}

// CountByCat counts ledger entries for a cat. Reconciliation path.
func (s *Store) CountByCat(ctx context.Context, catID string) (int, error) {
	total := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(catIndex),
			KeyConditionExpression: awsString("cat_id = :cat"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cat": &types.AttributeValueMemberS{Value: catID},
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, core.WrapStorage("count visits", err)
		}
		total += int(out.Count)
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return total, nil
}

func awsString(s string) *string { return &s }
