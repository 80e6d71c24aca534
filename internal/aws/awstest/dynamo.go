// Package awstest provides in-memory fakes for the AWS client interfaces.
// The DynamoDB fake understands only the expression shapes the stores in
// this repo actually issue; it is a test double, not an emulator.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type keySchema struct {
	pk string
	sk string // empty for simple keys
}

type table struct {
	schema  keySchema
	indexes map[string]keySchema
	items   map[string]map[string]types.AttributeValue
}

// FakeDynamo is a concurrency-safe in-memory DynamoDB double.
type FakeDynamo struct {
	mu     sync.Mutex
	tables map[string]*table

	// FailNext, when set, makes the next call return the error and reset.
	FailNext error

	// Hook, when set, runs before every call with the operation name and
	// table; a non-nil return fails the call. Lets tests inject faults at
	// a specific step of a multi-write flow.
	Hook func(op, table string) error
}

// NewFakeDynamo returns an empty fake. Tables must be registered with
// CreateTable before use.
func NewFakeDynamo() *FakeDynamo {
	return &FakeDynamo{tables: map[string]*table{}}
}

// CreateTable registers a table with a partition key and optional sort key.
func (f *FakeDynamo) CreateTable(name, pk, sk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{
		schema:  keySchema{pk: pk, sk: sk},
		indexes: map[string]keySchema{},
		items:   map[string]map[string]types.AttributeValue{},
	}
}

// CreateIndex registers a secondary index on an existing table.
func (f *FakeDynamo) CreateIndex(tableName, indexName, pk, sk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[tableName].indexes[indexName] = keySchema{pk: pk, sk: sk}
}

// Items returns a snapshot of all items in a table, for assertions.
func (f *FakeDynamo) Items(tableName string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	tbl := f.tables[tableName]
	out := make([]map[string]types.AttributeValue, 0, len(tbl.items))
	for _, it := range tbl.items {
		out = append(out, it)
	}
	return out
}

func (f *FakeDynamo) takeFailure(op, table string) error {
	if err := f.FailNext; err != nil {
		f.FailNext = nil
		return err
	}
	if f.Hook != nil {
		return f.Hook(op, table)
	}
	return nil
}

func (t *table) itemKey(item map[string]types.AttributeValue) (string, error) {
	pkv, ok := item[t.schema.pk]
	if !ok {
		return "", fmt.Errorf("missing partition key %s", t.schema.pk)
	}
	k := avString(pkv)
	if t.schema.sk != "" {
		skv, ok := item[t.schema.sk]
		if !ok {
			return "", fmt.Errorf("missing sort key %s", t.schema.sk)
		}
		k += "|" + avString(skv)
	}
	return k, nil
}

func (f *FakeDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("PutItem", *params.TableName); err != nil {
		return nil, err
	}
	tbl, ok := f.tables[*params.TableName]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", *params.TableName)
	}
	key, err := tbl.itemKey(params.Item)
	if err != nil {
		return nil, err
	}
	existing := tbl.items[key]
	if params.ConditionExpression != nil {
		if !evalCondition(*params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, existing) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	tbl.items[key] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *FakeDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("GetItem", *params.TableName); err != nil {
		return nil, err
	}
	tbl, ok := f.tables[*params.TableName]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", *params.TableName)
	}
	key, err := tbl.itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := tbl.items[key]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *FakeDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("UpdateItem", *params.TableName); err != nil {
		return nil, err
	}
	tbl, ok := f.tables[*params.TableName]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", *params.TableName)
	}
	key, err := tbl.itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := tbl.items[key]
	if params.ConditionExpression != nil {
		if !evalCondition(*params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if !exists {
		// DynamoDB upserts: start from the key attributes
		item = copyItem(params.Key)
	}
	if params.UpdateExpression != nil {
		applyUpdate(*params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
	}
	tbl.items[key] = item
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (f *FakeDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("DeleteItem", *params.TableName); err != nil {
		return nil, err
	}
	tbl, ok := f.tables[*params.TableName]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", *params.TableName)
	}
	key, err := tbl.itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	delete(tbl.items, key)
	return &dyn.DeleteItemOutput{}, nil
}

func (f *FakeDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("Query", *params.TableName); err != nil {
		return nil, err
	}
	tbl, ok := f.tables[*params.TableName]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", *params.TableName)
	}
	schema := tbl.schema
	if params.IndexName != nil {
		idx, ok := tbl.indexes[*params.IndexName]
		if !ok {
			return nil, fmt.Errorf("unknown index %s", *params.IndexName)
		}
		schema = idx
	}

	if params.KeyConditionExpression == nil {
		return nil, errors.New("missing key condition")
	}
	var matched []map[string]types.AttributeValue
	for _, item := range tbl.items {
		if !evalCondition(*params.KeyConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item) {
			continue
		}
		if params.FilterExpression != nil &&
			!evalCondition(*params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item) {
			continue
		}
		matched = append(matched, item)
	}

	if schema.sk != "" {
		sort.Slice(matched, func(i, j int) bool {
			a, b := matched[i][schema.sk], matched[j][schema.sk]
			if avEqual(a, b) {
				// indexes order ties by the base table key
				ka, _ := tbl.itemKey(matched[i])
				kb, _ := tbl.itemKey(matched[j])
				return ka < kb
			}
			return avLess(a, b)
		})
	}
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	start := 0
	if params.ExclusiveStartKey != nil {
		wantKey, err := tbl.itemKey(params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		for i, item := range matched {
			k, _ := tbl.itemKey(item)
			if k == wantKey {
				start = i + 1
				break
			}
		}
	}
	matched = matched[start:]

	var lastKey map[string]types.AttributeValue
	if params.Limit != nil && int(*params.Limit) < len(matched) {
		matched = matched[:int(*params.Limit)]
		last := matched[len(matched)-1]
		lastKey = map[string]types.AttributeValue{schema.pk: last[schema.pk]}
		if schema.sk != "" {
			lastKey[schema.sk] = last[schema.sk]
		}
		// base table key attributes are always part of LastEvaluatedKey
		lastKey[tbl.schema.pk] = last[tbl.schema.pk]
		if tbl.schema.sk != "" {
			lastKey[tbl.schema.sk] = last[tbl.schema.sk]
		}
	}

	out := &dyn.QueryOutput{Count: int32(len(matched)), LastEvaluatedKey: lastKey}
	if params.Select != types.SelectCount {
		for _, item := range matched {
			out.Items = append(out.Items, copyItem(item))
		}
	}
	return out, nil
}

// --- expression evaluation ---

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		return names[name]
	}
	return name
}

// evalCondition handles the condition forms used by this repo:
// attribute_exists(a), attribute_not_exists(a), a = :v, a > :v,
// begins_with(a, :v), joined with AND.
func evalCondition(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) bool {
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_not_exists("):
			if item != nil {
				attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")"), names)
				if _, ok := item[attr]; ok {
					return false
				}
			}
		case strings.HasPrefix(clause, "attribute_exists("):
			attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_exists("), ")"), names)
			if item == nil {
				return false
			}
			if _, ok := item[attr]; !ok {
				return false
			}
		case strings.HasPrefix(clause, "begins_with("):
			args := strings.TrimSuffix(strings.TrimPrefix(clause, "begins_with("), ")")
			parts := strings.SplitN(args, ",", 2)
			attr := resolveName(strings.TrimSpace(parts[0]), names)
			val := values[strings.TrimSpace(parts[1])]
			if item == nil || !strings.HasPrefix(avString(item[attr]), avString(val)) {
				return false
			}
		case strings.Contains(clause, " = "):
			parts := strings.SplitN(clause, " = ", 2)
			attr := resolveName(strings.TrimSpace(parts[0]), names)
			want := values[strings.TrimSpace(parts[1])]
			if item == nil || !avEqual(item[attr], want) {
				return false
			}
		case strings.Contains(clause, " > "):
			parts := strings.SplitN(clause, " > ", 2)
			attr := resolveName(strings.TrimSpace(parts[0]), names)
			want := values[strings.TrimSpace(parts[1])]
			if item == nil || !avLess(want, item[attr]) {
				return false
			}
		default:
			panic("awstest: unsupported condition clause: " + clause)
		}
	}
	return true
}

// applyUpdate handles "SET a = :v, b = :w" and "ADD c :n" clauses.
func applyUpdate(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) {
	rest := strings.TrimSpace(expr)
	for rest != "" {
		var clause string
		if idx := nextClauseStart(rest); idx > 0 {
			clause, rest = rest[:idx], rest[idx:]
		} else {
			clause, rest = rest, ""
		}
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "SET "):
			for _, a := range strings.Split(strings.TrimPrefix(clause, "SET "), ",") {
				parts := strings.SplitN(a, "=", 2)
				attr := resolveName(strings.TrimSpace(parts[0]), names)
				item[attr] = values[strings.TrimSpace(parts[1])]
			}
		case strings.HasPrefix(clause, "ADD "):
			fields := strings.Fields(strings.TrimPrefix(clause, "ADD "))
			attr := resolveName(fields[0], names)
			delta := avNumber(values[fields[1]])
			item[attr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(avNumberOrZero(item[attr])+delta, 10)}
		default:
			panic("awstest: unsupported update clause: " + clause)
		}
	}
}

func nextClauseStart(s string) int {
	for _, kw := range []string{" SET ", " ADD "} {
		if i := strings.Index(s[1:], kw); i >= 0 {
			return i + 1
		}
	}
	return -1
}

// --- attribute value helpers ---

func avString(v types.AttributeValue) string {
	switch t := v.(type) {
	case *types.AttributeValueMemberS:
		return t.Value
	case *types.AttributeValueMemberN:
		return t.Value
	case *types.AttributeValueMemberBOOL:
		return strconv.FormatBool(t.Value)
	default:
		return ""
	}
}

func avNumber(v types.AttributeValue) int64 {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	i, _ := strconv.ParseInt(n.Value, 10, 64)
	return i
}

func avNumberOrZero(v types.AttributeValue) int64 {
	if v == nil {
		return 0
	}
	return avNumber(v)
}

func avEqual(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return false
	}
	switch ta := a.(type) {
	case *types.AttributeValueMemberBOOL:
		tb, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && ta.Value == tb.Value
	case *types.AttributeValueMemberN:
		tb, ok := b.(*types.AttributeValueMemberN)
		return ok && avNumber(ta) == avNumber(tb)
	default:
		return avString(a) == avString(b)
	}
}

func avLess(a, b types.AttributeValue) bool {
	if na, ok := a.(*types.AttributeValueMemberN); ok {
		if nb, ok := b.(*types.AttributeValueMemberN); ok {
			return avNumber(na) < avNumber(nb)
		}
	}
	return avString(a) < avString(b)
}

func copyItem(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
