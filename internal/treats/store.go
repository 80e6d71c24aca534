// Package treats enforces at-most-one treat per (cat, visitor) pair. The
// treat ledger is the durable source of truth; the cat counter and the
// visitor's leaderboard stat are derived from it and rebuildable.
package treats

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

// visitorIndex projects the ledger by visitor for stat recounts.
// PK visitor_id.
const visitorIndex = "visitor-index"

// Treat is the item stored in the treats table.
type Treat struct {
	CatID     string    `dynamodbav:"cat_id"`     // PK
	VisitorID string    `dynamodbav:"visitor_id"` // SK
	Scope     string    `dynamodbav:"scope"`      // leaderboard scope the treat counts toward
	CreatedAt time.Time `dynamodbav:"created_at"`
}

// Store encapsulates operations on the treats table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a treats Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// Create records a treat if none exists for the pair. Returns (true, nil)
// when the treat was created, (false, nil) when the pair already existed.
func (s *Store) Create(ctx context.Context, catID, visitorID, scope string) (bool, error) {
	tr := Treat{CatID: catID, VisitorID: visitorID, Scope: scope, CreatedAt: s.nowFunc().UTC()}
	item, err := attributevalue.MarshalMap(tr)
	if err != nil {
		return false, fmt.Errorf("marshal treat: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(cat_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, core.WrapStorage("put treat", err)
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
			KeyConditionExpression: awsString("cat_id = :cat"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cat": &types.AttributeValueMemberS{Value: catID},
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, core.WrapStorage("count treats", err)
		}
		total += int(out.Count)
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return total, nil
}

// CountByVisitorScope counts a visitor's treats within a scope.
// Reconciliation path for user stats.
func (s *Store) CountByVisitorScope(ctx context.Context, visitorID, scope string) (int, error) {
	total := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(visitorIndex),
			KeyConditionExpression: awsString("visitor_id = :v"),
			FilterExpression:       awsString("#sc = :scope"),
			ExpressionAttributeNames: map[string]string{
				"#sc": "scope",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v":     &types.AttributeValueMemberS{Value: visitorID},
				":scope": &types.AttributeValueMemberS{Value: scope},
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, core.WrapStorage("count visitor treats", err)
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
