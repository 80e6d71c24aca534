package awstest

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// FakeSQS records sent message bodies.
type FakeSQS struct {
	mu      sync.Mutex
	Sent    []string
	SendErr error
}

func (f *FakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	f.Sent = append(f.Sent, *params.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

// Bodies returns a snapshot of sent message bodies.
func (f *FakeSQS) Bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Sent))
	copy(out, f.Sent)
	return out
}

// FakeCloudWatch counts metric puts by name.
type FakeCloudWatch struct {
	mu   sync.Mutex
	Puts map[string]int
}

func (f *FakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Puts == nil {
		f.Puts = map[string]int{}
	}
	for _, d := range params.MetricData {
		f.Puts[*d.MetricName]++
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}
