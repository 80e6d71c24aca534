package core

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TimeKeyLayout is the timestamp layout for string sort keys. It is fixed
// width: RFC3339Nano drops trailing zeros, so "...00Z" would sort after
// "...00.5Z" and break chronological index order.
const TimeKeyLayout = "2006-01-02T15:04:05.000000000Z07:00"

// TimeKey is a timestamp that marshals to a fixed-width DynamoDB string.
// Use it for attributes that serve as sort keys.
type TimeKey time.Time

func (k TimeKey) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberS{Value: k.String()}, nil
}

func (k *TimeKey) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return fmt.Errorf("time key: unexpected attribute %T", av)
	}
	t, err := time.Parse(TimeKeyLayout, s.Value)
	if err != nil {
		return fmt.Errorf("time key: %w", err)
	}
	*k = TimeKey(t)
	return nil
}

// Time returns the underlying time.
func (k TimeKey) Time() time.Time { return time.Time(k) }

// String renders the fixed-width form, always in UTC.
func (k TimeKey) String() string { return time.Time(k).UTC().Format(TimeKeyLayout) }
