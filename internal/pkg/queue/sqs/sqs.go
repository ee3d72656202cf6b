package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"newsqueue/internal/pkg/logger"
	"newsqueue/internal/pkg/queue"
)

// API is the subset of the SQS client used by SqsActions.
type API interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// ClientConfig describes how to reach SQS.
type ClientConfig struct {
	Region    string
	Endpoint  string // optional, e.g. a LocalStack URL
	AccessKey string // optional static credentials
	SecretKey string
}

// SqsActions provides methods to interact with AWS SQS.
type SqsActions struct {
	SqsClient API            // AWS SQS client
	Config    *queue.Options // Queue name and timeouts
	Now       func() time.Time

	queueURL *string
}

var _ queue.QueueClient = (*SqsActions)(nil)

// NewClient creates a new sqs client
func NewClient(ctx context.Context, c ClientConfig) (*sqs.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}

	// Load the Shared AWS Configuration
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	svc := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})
	return svc, nil
}

// New creates a new SqsActions instance.
func New(client API, opts queue.Options) *SqsActions {
	opts = opts.WithDefaults()
	return &SqsActions{SqsClient: client, Config: &opts, Now: time.Now}
}

// CreateIfNotExists looks the queue up by name and creates it when missing.
func (a *SqsActions) CreateIfNotExists(ctx context.Context) error {
	out, err := a.SqsClient.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(a.Config.QueueName),
	})
	if err == nil {
		a.queueURL = out.QueueUrl
		return nil
	}

	var notExist *types.QueueDoesNotExist
	if !errors.As(err, &notExist) {
		return &queue.ConnectivityError{Op: "create", Err: err}
	}

	logger.Info("creating SQS queue %s", a.Config.QueueName)
	created, err := a.SqsClient.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(a.Config.QueueName),
		Attributes: map[string]string{
			string(types.QueueAttributeNameVisibilityTimeout):      seconds(a.Config.VisibilityTimeout),
			string(types.QueueAttributeNameMessageRetentionPeriod): seconds(a.Config.MessageTTL),
		},
	})
	if err != nil {
		return &queue.ConnectivityError{Op: "create", Err: err}
	}
	a.queueURL = created.QueueUrl
	return nil
}

// Send sends a message body to the SQS queue.
func (a *SqsActions) Send(ctx context.Context, body string) (queue.SendReceipt, error) {
	url, err := a.resolveURL(ctx)
	if err != nil {
		return queue.SendReceipt{}, err
	}

	now := a.Now()
	out, err := a.SqsClient.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    url,
		MessageBody: aws.String(body),
	})
	if err != nil {
		logger.Error("SQS SendMessage error: %s", err)
		return queue.SendReceipt{}, &queue.ConnectivityError{Op: "send", Err: err}
	}

	return queue.SendReceipt{
		MessageID:  aws.ToString(out.MessageId),
		InsertedOn: now,
		ExpiresOn:  now.Add(a.Config.MessageTTL),
	}, nil
}

// Peek receives the head message and immediately makes it visible again.
// SQS has no native peek, so the receipt handle is discarded and the
// receive count of the message is incremented.
func (a *SqsActions) Peek(ctx context.Context) (*queue.PeekedMessage, error) {
	msg, err := a.receiveOne(ctx, "peek", 1)
	if err != nil {
		return nil, err
	}

	if _, err := a.SqsClient.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          a.queueURL,
		ReceiptHandle:     msg.ReceiptHandle,
		VisibilityTimeout: 0,
	}); err != nil {
		logger.Warn("unable to release peeked message %s: %s", aws.ToString(msg.MessageId), err)
	}

	inserted := sentTimestamp(msg)
	return &queue.PeekedMessage{
		MessageID:  aws.ToString(msg.MessageId),
		InsertedOn: inserted,
		ExpiresOn:  inserted.Add(a.Config.MessageTTL),
		Body:       aws.ToString(msg.Body),
	}, nil
}

// Receive receives the head message and hides it for the visibility timeout.
func (a *SqsActions) Receive(ctx context.Context) (*queue.ReceivedMessage, error) {
	vt := int32(a.Config.VisibilityTimeout / time.Second)
	msg, err := a.receiveOne(ctx, "receive", vt)
	if err != nil {
		return nil, err
	}

	inserted := sentTimestamp(msg)
	count, _ := strconv.ParseInt(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)], 10, 64)
	return &queue.ReceivedMessage{
		MessageID:     aws.ToString(msg.MessageId),
		PopReceipt:    aws.ToString(msg.ReceiptHandle),
		InsertedOn:    inserted,
		ExpiresOn:     inserted.Add(a.Config.MessageTTL),
		NextVisibleOn: a.Now().Add(a.Config.VisibilityTimeout),
		DequeueCount:  count,
		Body:          aws.ToString(msg.Body),
	}, nil
}

// Delete deletes a message from the SQS queue. SQS keys deletion on the receipt handle alone.
func (a *SqsActions) Delete(ctx context.Context, messageID, popReceipt string) error {
	url, err := a.resolveURL(ctx)
	if err != nil {
		return err
	}

	_, err = a.SqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      url,
		ReceiptHandle: aws.String(popReceipt),
	})
	if err != nil {
		var invalid *types.ReceiptHandleIsInvalid
		if errors.As(err, &invalid) {
			return fmt.Errorf("%w: %s", queue.ErrMessageNotFound, messageID)
		}
		logger.Error("unable to delete message %s from queue %s: %s", messageID, a.Config.QueueName, err)
		return &queue.ConnectivityError{Op: "delete", Err: err}
	}
	return nil
}

// Close is a no-op; the SDK client holds no persistent connection.
func (a *SqsActions) Close() error {
	return nil
}

func (a *SqsActions) receiveOne(ctx context.Context, op string, visibility int32) (*types.Message, error) {
	url, err := a.resolveURL(ctx)
	if err != nil {
		return nil, err
	}

	result, err := a.SqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            url,
		MaxNumberOfMessages: 1,
		VisibilityTimeout:   visibility,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameSentTimestamp,
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		logger.Error("SQS ReceiveMessage error on queue %s: %s", a.Config.QueueName, err)
		return nil, &queue.ConnectivityError{Op: op, Err: err}
	}
	if len(result.Messages) == 0 {
		return nil, queue.ErrEmptyQueue
	}
	return &result.Messages[0], nil
}

func (a *SqsActions) resolveURL(ctx context.Context) (*string, error) {
	if a.queueURL != nil {
		return a.queueURL, nil
	}

	out, err := a.SqsClient.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(a.Config.QueueName),
	})
	if err != nil {
		var notExist *types.QueueDoesNotExist
		if errors.As(err, &notExist) {
			return nil, queue.ErrQueueNotFound
		}
		return nil, &queue.ConnectivityError{Op: "resolve", Err: err}
	}
	a.queueURL = out.QueueUrl
	return a.queueURL, nil
}

func sentTimestamp(msg *types.Message) time.Time {
	ms, err := strconv.ParseInt(msg.Attributes[string(types.MessageSystemAttributeNameSentTimestamp)], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}
