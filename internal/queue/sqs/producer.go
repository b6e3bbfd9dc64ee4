package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type Producer struct {
	SQS      *sqs.Client
	QueueURL string
}

// RetryJob re-drives one failed outbound message through the send path.
type RetryJob struct {
	TenantID  string `json:"tenantId"`
	MessageID string `json:"messageId"`
	Attempt   int    `json:"attempt"`
}

func (p *Producer) EnqueueRetry(ctx context.Context, job RetryJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	groupID := messageGroupIDBucketed(job.TenantID, job.MessageID, 2000)
	dedupID := fmt.Sprintf("%s:%d", job.MessageID, job.Attempt)
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               &p.QueueURL,
		MessageBody:            str(string(body)),
		MessageGroupId:         str(groupID),
		MessageDeduplicationId: str(dedupID),
	})
	return err
}

// messageGroupIDBucketed hashes tenant+message into a bounded number of FIFO
// groups so one hot tenant cannot serialize the whole queue.
func messageGroupIDBucketed(tenantID, messageID string, buckets uint32) string {
	if buckets == 0 {
		buckets = 1000
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantID))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(messageID))
	return fmt.Sprintf("%s:%d", tenantID, h.Sum32()%buckets)
}

func str(s string) *string { return &s }
