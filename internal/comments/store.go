// Package comments owns the append-only per-cat comment stream. Comments
// are keyed by creation time plus a random suffix, so listing is a plain
// range query; they are never mutated, only removed by moderation.
package comments

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/whiskermap/go-catmap-backend/internal/aws"
	"github.com/whiskermap/go-catmap-backend/internal/core"
)

// Comment is the item stored in the comments table. CommentID doubles as
// the sort key: "<fixed-width timestamp>#<uuid>", which orders the stream
// by time and is opaque enough to hand back to clients.
type Comment struct {
	CatID     string    `dynamodbav:"cat_id"`     // PK
	CommentID string    `dynamodbav:"comment_id"` // SK
	VisitorID string    `dynamodbav:"visitor_id"`
	Body      string    `dynamodbav:"body"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

// Store encapsulates operations on the comments table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	maxBody   int
	nowFunc   func() time.Time
	idFunc    func() string
}

// NewStore creates a comments Store. maxBody bounds the comment length.
func NewStore(client aws.DynamoDBAPI, tableName string, maxBody int) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		maxBody:   maxBody,
		nowFunc:   time.Now,
		idFunc:    uuid.NewString,
	}
}

// Post appends a comment. The body must be non-empty after trimming and
// within the configured maximum.
func (s *Store) Post(ctx context.Context, catID, visitorID, body string) (*Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: empty comment body", core.ErrValidation)
	}
	if len(body) > s.maxBody {
		return nil, fmt.Errorf("%w: comment body exceeds %d characters", core.ErrValidation, s.maxBody)
	}

	now := s.nowFunc().UTC()
	c := Comment{
		CatID:     catID,
		CommentID: now.Format(core.TimeKeyLayout) + "#" + s.idFunc(),
		VisitorID: visitorID,
		Body:      body,
		CreatedAt: now,
	}
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return nil, fmt.Errorf("marshal comment: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return nil, core.WrapStorage("put comment", err)
	}
	return &c, nil
}

type listCursor struct {
	CommentID string `json:"c"`
}

// ListByCat returns one page of a cat's comments, newest-first by default.
func (s *Store) ListByCat(ctx context.Context, catID, cursor string, limit int, oldestFirst bool) ([]Comment, string, error) {
	var startKey map[string]types.AttributeValue
	if cursor != "" {
		var cur listCursor
		if err := decodeCursor(cursor, &cur); err != nil {
			return nil, "", err
		}
		startKey = map[string]types.AttributeValue{
			"cat_id":     &types.AttributeValueMemberS{Value: catID},
			"comment_id": &types.AttributeValueMemberS{Value: cur.CommentID},
		}
	}

	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: awsString("cat_id = :cat"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cat": &types.AttributeValueMemberS{Value: catID},
		},
		ScanIndexForward:  &oldestFirst,
		Limit:             int32Ptr(int32(limit)),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		return nil, "", core.WrapStorage("query comments", err)
	}

	page := make([]Comment, 0, len(out.Items))
	for _, item := range out.Items {
		var c Comment
		if err := attributevalue.UnmarshalMap(item, &c); err != nil {
			return nil, "", fmt.Errorf("unmarshal comment: %w", err)
		}
		page = append(page, c)
	}

	next := ""
	if out.LastEvaluatedKey != nil && len(page) > 0 {
		next, err = encodeCursor(listCursor{CommentID: page[len(page)-1].CommentID})
		if err != nil {
			return nil, "", err
		}
	}
	return page, next, nil
}

// Remove deletes a comment by id. Moderation path; removing an absent
// comment is a no-op.
func (s *Store) Remove(ctx context.Context, catID, commentID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"cat_id":     &types.AttributeValueMemberS{Value: catID},
			"comment_id": &types.AttributeValueMemberS{Value: commentID},
		},
	})
	if err != nil {
		return core.WrapStorage("delete comment", err)
	}
	return nil
}

func encodeCursor(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeCursor(cursor string, out interface{}) error {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return fmt.Errorf("%w: malformed cursor", core.ErrValidation)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: malformed cursor", core.ErrValidation)
	}
	return nil
}

func awsString(s string) *string { return &s }
func int32Ptr(v int32) *int32    { return &v }
