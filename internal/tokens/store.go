// Package tokens issues and redeems the short-lived, single-use tokens
// that gate treat and comment submission. A token is read-and-marked
// consumed in one conditional update, so two concurrent redemptions have
// exactly one winner. Expired items are purged by the table's TTL on
// expires_at.
package tokens

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/whiskermap/go-catmap-backend/internal/aws"
	"github.com/whiskermap/go-catmap-backend/internal/core"
)

const tokenBytes = 32

// Token is the item stored in the tokens table.
type Token struct {
	Token      string    `dynamodbav:"token"` // PK
	Scope      string    `dynamodbav:"scope"` // action this token authorizes, e.g. "treat:<catId>"
	Consumed   bool      `dynamodbav:"consumed"`
	ExpiresAt  int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	CreatedAt  time.Time `dynamodbav:"created_at"`
	RedeemedAt string    `dynamodbav:"redeemed_at,omitempty"`
}

// Store encapsulates operations on the tokens table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a tokens Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// TreatScope returns the scope string binding a token to treat submission
// on one cat.
func TreatScope(catID string) string { return "treat:" + catID }

// CommentScope binds a token to comment submission on one cat.
func CommentScope(catID string) string { return "comment:" + catID }

// Issue generates an unguessable token valid for ttl.
func (s *Store) Issue(ctx context.Context, scope string, ttl time.Duration) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	now := s.nowFunc().UTC()
	tok := Token{
		Token:     base64.RawURLEncoding.EncodeToString(buf),
		Scope:     scope,
		Consumed:  false,
		ExpiresAt: now.Add(ttl).Unix(),
		CreatedAt: now,
	}
	item, err := attributevalue.MarshalMap(tok)
	if err != nil {
		return "", fmt.Errorf("marshal token: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(#t)"),
		ExpressionAttributeNames: map[string]string{
			"#t": "token",
		},
	})
	if err != nil {
		return "", core.WrapStorage("put token", err)
	}
	return tok.Token, nil
}

// Redeem atomically marks the token consumed, provided it exists, carries
// the expected scope, is unconsumed, and has not expired. On failure the
// token is re-read to classify the typed error; expiry wins over prior
// consumption, and a scope mismatch reports not-found rather than leaking
// what the token was for.
func (s *Store) Redeem(ctx context.Context, token, expectedScope string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"token": &types.AttributeValueMemberS{Value: token},
		},
		UpdateExpression: awsString("SET consumed = :true, redeemed_at = :ra"),
		ExpressionAttributeNames: map[string]string{
			"#t":  "token",
			"#sc": "scope",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":  &types.AttributeValueMemberBOOL{Value: true},
			":ra":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":scope": &types.AttributeValueMemberS{Value: expectedScope},
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":now":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		},
		ConditionExpression: awsString("attribute_exists(#t) AND #sc = :scope AND consumed = :false AND expires_at > :now"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return s.classifyRedeemFailure(ctx, token, expectedScope, now.Unix())
		}
		return core.WrapStorage("redeem token", err)
	}
	return nil
}

func (s *Store) classifyRedeemFailure(ctx context.Context, token, expectedScope string, nowUnix int64) error {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"token": &types.AttributeValueMemberS{Value: token},
		},
	})
	if err != nil {
		return core.WrapStorage("get token", err)
	}
	if len(out.Item) == 0 {
		return core.ErrTokenNotFound
	}
	var tok Token
	if err := attributevalue.UnmarshalMap(out.Item, &tok); err != nil {
		return fmt.Errorf("unmarshal token: %w", err)
	}
	switch {
	case tok.Scope != expectedScope:
		return core.ErrTokenNotFound
	case tok.ExpiresAt <= nowUnix:
		return core.ErrTokenExpired
	case tok.Consumed:
		return core.ErrTokenAlreadyUsed
	default:
		return core.ErrTokenNotFound
	}
}

func awsString(s string) *string { return &s }
