// Package leaderboard maintains per-user, per-scope treat counts and the
// rank projection used for top-N queries. A scope is a geographic
// partition derived from the cat's geohash.
package leaderboard

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

// rankIndex is the GSI used for top-N queries. PK scope, SK rank_key.
const rankIndex = "rank-index"

// Rank keys embed the count as a fixed-width inverted decimal so that
// plain ascending lexicographic order is descending by count, with userId
// breaking ties deterministically. maxCount is the capacity invariant:
// counts beyond it fail the increment instead of silently wrapping.
const (
	rankWidth = 10
	maxCount  = 9999999999
)

// scopePrecision is the geohash prefix length that defines a leaderboard
// scope (~20km cells).
const scopePrecision = 4

// incrementRetries bounds the optimistic CAS loop under contention.
const incrementRetries = 8

// UserStat is the item stored in the leaderboard table.
type UserStat struct {
	UserID    string    `dynamodbav:"user_id"` // PK
	Scope     string    `dynamodbav:"scope"`   // SK
	Count     int       `dynamodbav:"count"`
	RankKey   string    `dynamodbav:"rank_key"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

// Entry is one leaderboard row.
type Entry struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// ScopeForGeohash maps a stored geohash to its leaderboard scope.
func ScopeForGeohash(geohash string) string {
	if len(geohash) < scopePrecision {
		return geohash
	}
	return geohash[:scopePrecision]
}

// RankKey derives the sort key for a count. Exported because the
// reconciler rebuilds it after recounting the treat ledger.
func RankKey(count int, userID string) string {
	return fmt.Sprintf("%0*d#%s", rankWidth, maxCount-count, userID)
}

// Store encapsulates operations on the leaderboard table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a leaderboard Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// IncrementScore adds one to the user's count within a scope and rewrites
// count and rank_key together, so a reader never observes them out of
// sync. The write is an optimistic CAS on the previous count, retried on
// conflict.
func (s *Store) IncrementScore(ctx context.Context, userID, scope string) (int, error) {
	for attempt := 0; attempt < incrementRetries; attempt++ {
		cur, err := s.Get(ctx, userID, scope)
		if err != nil {
			return 0, err
		}

		if cur == nil {
			ok, err := s.createInitial(ctx, userID, scope)
			if err != nil {
				return 0, err
			}
			if ok {
				return 1, nil
			}
			continue // lost the race to another first increment
		}

		newCount := cur.Count + 1
		if newCount > maxCount {
			return 0, fmt.Errorf("%w: count exceeds rank key capacity", core.ErrValidation)
		}
		ok, err := s.casCount(ctx, userID, scope, cur.Count, newCount)
		if err != nil {
			return 0, err
		}
		if ok {
			return newCount, nil
		}
	}
	return 0, fmt.Errorf("increment score for %s/%s: %w: contention", userID, scope, core.ErrStorageUnavailable)
}

func (s *Store) createInitial(ctx context.Context, userID, scope string) (bool, error) {
	stat := UserStat{
		UserID:    userID,
		Scope:     scope,
		Count:     1,
		RankKey:   RankKey(1, userID),
		UpdatedAt: s.nowFunc().UTC(),
	}
	item, err := attributevalue.MarshalMap(stat)
	if err != nil {
		return false, fmt.Errorf("marshal user stat: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(user_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, core.WrapStorage("put user stat", err)
	}
	return true, nil
}

func (s *Store) casCount(ctx context.Context, userID, scope string, oldCount, newCount int) (bool, error) {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
			"scope":   &types.AttributeValueMemberS{Value: scope},
		},
		UpdateExpression:         awsString("SET #c = :new, rank_key = :rk, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#c": "count"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", newCount)},
			":rk":  &types.AttributeValueMemberS{Value: RankKey(newCount, userID)},
			":ua":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":old": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", oldCount)},
		},
		ConditionExpression: awsString("#c = :old"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, core.WrapStorage("cas user stat", err)
	}
	return true, nil
}

// Get fetches a user's stat within a scope. Returns (nil, nil) if absent.
func (s *Store) Get(ctx context.Context, userID, scope string) (*UserStat, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
			"scope":   &types.AttributeValueMemberS{Value: scope},
		},
	})
	if err != nil {
		return nil, core.WrapStorage("get user stat", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var stat UserStat
	if err := attributevalue.UnmarshalMap(out.Item, &stat); err != nil {
		return nil, fmt.Errorf("unmarshal user stat: %w", err)
	}
	return &stat, nil
}

// SetScore overwrites count and rank_key from a ledger recount.
// Reconciliation path; intentionally unconditional.
func (s *Store) SetScore(ctx context.Context, userID, scope string, count int) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
			"scope":   &types.AttributeValueMemberS{Value: scope},
		},
		UpdateExpression:         awsString("SET #c = :new, rank_key = :rk, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#c": "count"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", count)},
			":rk":  &types.AttributeValueMemberS{Value: RankKey(count, userID)},
			":ua":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		return core.WrapStorage("set user stat", err)
	}
	return nil
}

// TopN returns up to n entries for a scope in descending count order,
// ties broken by ascending userId.
func (s *Store) TopN(ctx context.Context, scope string, n int) ([]Entry, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(rankIndex),
		KeyConditionExpression: awsString("#sc = :scope"),
		ExpressionAttributeNames: map[string]string{
			"#sc": "scope",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":scope": &types.AttributeValueMemberS{Value: scope},
		},
		ScanIndexForward: boolPtr(true), // rank keys are inverted counts
		Limit:            int32Ptr(int32(n)),
	})
	if err != nil {
		return nil, core.WrapStorage("query top n", err)
	}
	entries := make([]Entry, 0, len(out.Items))
	for _, item := range out.Items {
		var stat UserStat
		if err := attributevalue.UnmarshalMap(item, &stat); err != nil {
			return nil, fmt.Errorf("unmarshal user stat: %w", err)
		}
		entries = append(entries, Entry{UserID: stat.UserID, Count: stat.Count})
	}
	return entries, nil
}

func awsString(s string) *string { return &s }
func int32Ptr(v int32) *int32    { return &v }
func boolPtr(v bool) *bool       { return &v }
