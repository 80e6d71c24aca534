package cats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/whiskermap/go-catmap-backend/internal/aws"
	"github.com/whiskermap/go-catmap-backend/internal/core"
	"github.com/whiskermap/go-catmap-backend/internal/geo"
)

// GSI names on the cats table.
const (
	geoIndex     = "geo-index"     // PK status, SK geohash
	pendingIndex = "pending-index" // PK status, SK created_at
)

// Store encapsulates operations on the cats table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
	idFunc    func() string
}

// NewStore creates a cats Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
		idFunc:    uuid.NewString,
	}
}

// Submit creates a Cat in PENDING with a freshly computed geohash.
func (s *Store) Submit(ctx context.Context, sub Submission) (*Cat, error) {
	if err := geo.ValidateCoords(sub.Lat, sub.Lon); err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	cat := Cat{
		CatID:       s.idFunc(),
		Status:      StatusPending,
		Geohash:     geo.Encode(sub.Lat, sub.Lon, geo.StoredPrecision),
		Lat:         sub.Lat,
		Lon:         sub.Lon,
		Name:        sub.Name,
		Description: sub.Description,
		SubmittedBy: sub.SubmittedBy,
		CreatedAt:   core.TimeKey(now),
		UpdatedAt:   now,
	}

	item, err := attributevalue.MarshalMap(cat)
	if err != nil {
		return nil, fmt.Errorf("marshal cat: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(cat_id)"),
	})
	if err != nil {
		return nil, core.WrapStorage("put cat", err)
	}
	return &cat, nil
}

// Get fetches a cat by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, catID string) (*Cat, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"cat_id": &types.AttributeValueMemberS{Value: catID},
		},
	})
	if err != nil {
		return nil, core.WrapStorage("get cat", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Cat
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cat: %w", err)
	}
	return &c, nil
}

// Moderate transitions PENDING -> APPROVED or PENDING -> REJECTED exactly
// once. Returns core.ErrNotFound for a missing cat and core.ErrInvalidState
// when the cat is no longer PENDING.
func (s *Store) Moderate(ctx context.Context, catID, decision string) (string, error) {
	var newStatus string
	switch decision {
	case DecisionApprove:
		newStatus = StatusApproved
	case DecisionReject:
		newStatus = StatusRejected
	default:
		return "", fmt.Errorf("%w: unknown decision %q", core.ErrValidation, decision)
	}

	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"cat_id": &types.AttributeValueMemberS{Value: catID},
		},
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: newStatus},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: StatusPending},
		},
		ConditionExpression: awsString("attribute_exists(cat_id) AND #s = :expected"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// distinguish missing cat from re-moderation
			existing, gerr := s.Get(ctx, catID)
			if gerr != nil {
				return "", gerr
			}
			if existing == nil {
				return "", fmt.Errorf("cat %s: %w", catID, core.ErrNotFound)
			}
			return "", fmt.Errorf("cat %s is %s: %w", catID, existing.Status, core.ErrInvalidState)
		}
		return "", core.WrapStorage("moderate cat", err)
	}
	return newStatus, nil
}

// IncrementVisitCount atomically bumps visit_count by one.
func (s *Store) IncrementVisitCount(ctx context.Context, catID string) error {
	return s.addToCounter(ctx, catID, "visit_count")
}

// IncrementTreatCount atomically bumps treat_count by one.
func (s *Store) IncrementTreatCount(ctx context.Context, catID string) error {
	return s.addToCounter(ctx, catID, "treat_count")
}

func (s *Store) addToCounter(ctx context.Context, catID, attr string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"cat_id": &types.AttributeValueMemberS{Value: catID},
		},
		UpdateExpression: awsString("ADD " + attr + " :inc"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inc": &types.AttributeValueMemberN{Value: "1"},
		},
		ConditionExpression: awsString("attribute_exists(cat_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("cat %s: %w", catID, core.ErrNotFound)
		}
		return core.WrapStorage("increment "+attr, err)
	}
	return nil
}

// SetCounters overwrites both denormalized counters. Used by the
// reconciler after recounting the ledgers.
func (s *Store) SetCounters(ctx context.Context, catID string, treatCount, visitCount int) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"cat_id": &types.AttributeValueMemberS{Value: catID},
		},
		UpdateExpression: awsString("SET treat_count = :tc, visit_count = :vc, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tc": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", treatCount)},
			":vc": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", visitCount)},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ConditionExpression: awsString("attribute_exists(cat_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("cat %s: %w", catID, core.ErrNotFound)
		}
		return core.WrapStorage("set counters", err)
	}
	return nil
}

// viewportCursor resumes a viewport page: which cover prefix the previous
// page stopped in, plus the geo-index key of the last returned item.
type viewportCursor struct {
	PrefixIndex int    `json:"p"`
	Status      string `json:"s,omitempty"`
	Geohash     string `json:"g,omitempty"`
	CatID       string `json:"c,omitempty"`
}

// QueryByViewport returns approved cats inside the box, ordered by geohash,
// one page at a time. Prefix cells only approximate the box, so retrieved
// cats are filtered by exact containment before being returned.
func (s *Store) QueryByViewport(ctx context.Context, box geo.BoundingBox, cursor string, limit int) ([]Cat, string, error) {
	if err := box.Validate(); err != nil {
		return nil, "", err
	}
	prefixes := geo.BoundingBoxPrefixes(box)

	var cur viewportCursor
	if cursor != "" {
		if err := decodeCursor(cursor, &cur); err != nil {
			return nil, "", err
		}
		if cur.PrefixIndex >= len(prefixes) {
			return nil, "", fmt.Errorf("%w: stale cursor", core.ErrValidation)
		}
	}

	var page []Cat
	for i := cur.PrefixIndex; i < len(prefixes); i++ {
		var startKey map[string]types.AttributeValue
		if i == cur.PrefixIndex && cur.CatID != "" {
			startKey = map[string]types.AttributeValue{
				"status":  &types.AttributeValueMemberS{Value: cur.Status},
				"geohash": &types.AttributeValueMemberS{Value: cur.Geohash},
				"cat_id":  &types.AttributeValueMemberS{Value: cur.CatID},
			}
		}

		for {
			remaining := limit - len(page)
			out, err := s.client.Query(ctx, &dyn.QueryInput{
				TableName:                &s.tableName,
				IndexName:                awsString(geoIndex),
				KeyConditionExpression:   awsString("#s = :status AND begins_with(geohash, :prefix)"),
				ExpressionAttributeNames: map[string]string{"#s": "status"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":status": &types.AttributeValueMemberS{Value: StatusApproved},
					":prefix": &types.AttributeValueMemberS{Value: prefixes[i]},
				},
				Limit:             int32Ptr(int32(remaining)),
				ExclusiveStartKey: startKey,
			})
			if err != nil {
				return nil, "", core.WrapStorage("query viewport", err)
			}

			var last *Cat
			for _, item := range out.Items {
				var c Cat
				if err := attributevalue.UnmarshalMap(item, &c); err != nil {
					return nil, "", fmt.Errorf("unmarshal cat: %w", err)
				}
				last = &c
				if box.Contains(c.Lat, c.Lon) {
					page = append(page, c)
				}
			}

			if len(page) >= limit && (out.LastEvaluatedKey != nil || last != nil) {
				next := viewportCursor{PrefixIndex: i}
				if last != nil {
					next.Status, next.Geohash, next.CatID = last.Status, last.Geohash, last.CatID
				}
				enc, err := encodeCursor(next)
				if err != nil {
					return nil, "", err
				}
				return page, enc, nil
			}
			if out.LastEvaluatedKey == nil {
				break
			}
			startKey = out.LastEvaluatedKey
		}
	}
	return page, "", nil
}

// pendingCursor resumes the moderation queue.
type pendingCursor struct {
	CreatedAt string `json:"t"`
	CatID     string `json:"c"`
}

// QueryPendingQueue returns PENDING cats ordered oldest-first for
// moderation review.
func (s *Store) QueryPendingQueue(ctx context.Context, cursor string, limit int) ([]Cat, string, error) {
	var startKey map[string]types.AttributeValue
	if cursor != "" {
		var cur pendingCursor
		if err := decodeCursor(cursor, &cur); err != nil {
			return nil, "", err
		}
		startKey = map[string]types.AttributeValue{
			"status":     &types.AttributeValueMemberS{Value: StatusPending},
			"created_at": &types.AttributeValueMemberS{Value: cur.CreatedAt},
			"cat_id":     &types.AttributeValueMemberS{Value: cur.CatID},
		}
	}

	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:                 &s.tableName,
		IndexName:                 awsString(pendingIndex),
		KeyConditionExpression:    awsString("#s = :status"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":status": &types.AttributeValueMemberS{Value: StatusPending}},
		ScanIndexForward:          boolPtr(true),
		Limit:                     int32Ptr(int32(limit)),
		ExclusiveStartKey:         startKey,
	})
	if err != nil {
		return nil, "", core.WrapStorage("query pending queue", err)
	}

	cats := make([]Cat, 0, len(out.Items))
	for _, item := range out.Items {
		var c Cat
		if err := attributevalue.UnmarshalMap(item, &c); err != nil {
			return nil, "", fmt.Errorf("unmarshal cat: %w", err)
		}
		cats = append(cats, c)
	}

	next := ""
	if out.LastEvaluatedKey != nil && len(cats) > 0 {
		last := cats[len(cats)-1]
		next, err = encodeCursor(pendingCursor{
			CreatedAt: last.CreatedAt.String(),
			CatID:     last.CatID,
		})
		if err != nil {
			return nil, "", err
		}
	}
	return cats, next, nil
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
func boolPtr(v bool) *bool       { return &v }
