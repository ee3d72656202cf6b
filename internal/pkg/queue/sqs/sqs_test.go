package sqs

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"newsqueue/internal/pkg/logger"
	"newsqueue/internal/pkg/queue"
)

const testQueueURL = "http://localhost:4566/000000000000/newsqueue"

func TestMain(m *testing.M) {
	if err := logger.Setup("error"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type MockSQSClient struct {
	mock.Mock
}

func (m *MockSQSClient) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.GetQueueUrlOutput), args.Error(1)
}

func (m *MockSQSClient) CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.CreateQueueOutput), args.Error(1)
}

func (m *MockSQSClient) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.SendMessageOutput), args.Error(1)
}

func (m *MockSQSClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.ReceiveMessageOutput), args.Error(1)
}

func (m *MockSQSClient) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.ChangeMessageVisibilityOutput), args.Error(1)
}

func (m *MockSQSClient) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.DeleteMessageOutput), args.Error(1)
}

func newTestActions(client *MockSQSClient) *SqsActions {
	a := New(client, queue.Options{
		QueueName:         "newsqueue",
		VisibilityTimeout: 30 * time.Second,
		MessageTTL:        24 * time.Hour,
	})
	a.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return a
}

func withResolvedURL(client *MockSQSClient) {
	client.On("GetQueueUrl", mock.Anything, mock.MatchedBy(func(in *sqs.GetQueueUrlInput) bool {
		return aws.ToString(in.QueueName) == "newsqueue"
	})).Return(&sqs.GetQueueUrlOutput{QueueUrl: aws.String(testQueueURL)}, nil).Once()
}

func TestCreateIfNotExists_Existing(t *testing.T) {
	client := new(MockSQSClient)
	withResolvedURL(client)

	a := newTestActions(client)
	require.NoError(t, a.CreateIfNotExists(context.Background()))
	assert.Equal(t, testQueueURL, aws.ToString(a.queueURL))

	client.AssertNotCalled(t, "CreateQueue", mock.Anything, mock.Anything)
	client.AssertExpectations(t)
}

func TestCreateIfNotExists_Missing(t *testing.T) {
	client := new(MockSQSClient)
	client.On("GetQueueUrl", mock.Anything, mock.Anything).
		Return(nil, &types.QueueDoesNotExist{Message: aws.String("not found")}).Once()
	client.On("CreateQueue", mock.Anything, mock.MatchedBy(func(in *sqs.CreateQueueInput) bool {
		return aws.ToString(in.QueueName) == "newsqueue" &&
			in.Attributes["VisibilityTimeout"] == "30" &&
			in.Attributes["MessageRetentionPeriod"] == "86400"
	})).Return(&sqs.CreateQueueOutput{QueueUrl: aws.String(testQueueURL)}, nil).Once()

	a := newTestActions(client)
	require.NoError(t, a.CreateIfNotExists(context.Background()))
	assert.Equal(t, testQueueURL, aws.ToString(a.queueURL))
	client.AssertExpectations(t)
}

func TestCreateIfNotExists_Unreachable(t *testing.T) {
	client := new(MockSQSClient)
	client.On("GetQueueUrl", mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp: connection refused")).Once()

	a := newTestActions(client)
	err := a.CreateIfNotExists(context.Background())
	require.Error(t, err)
	assert.True(t, queue.IsConnectivity(err))
}

func TestSend(t *testing.T) {
	client := new(MockSQSClient)
	withResolvedURL(client)
	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.ToString(in.QueueUrl) == testQueueURL && aws.ToString(in.MessageBody) == `{"Headline":"a","Location":"b"}`
	})).Return(&sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil).Once()

	a := newTestActions(client)
	receipt, err := a.Send(context.Background(), `{"Headline":"a","Location":"b"}`)
	require.NoError(t, err)

	assert.Equal(t, "msg-1", receipt.MessageID)
	assert.Equal(t, a.Now(), receipt.InsertedOn)
	assert.Equal(t, a.Now().Add(24*time.Hour), receipt.ExpiresOn)
	client.AssertExpectations(t)
}

func TestSend_QueueMissing(t *testing.T) {
	client := new(MockSQSClient)
	client.On("GetQueueUrl", mock.Anything, mock.Anything).
		Return(nil, &types.QueueDoesNotExist{}).Once()

	a := newTestActions(client)
	_, err := a.Send(context.Background(), "body")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)
}

func TestSend_TransportError(t *testing.T) {
	client := new(MockSQSClient)
	withResolvedURL(client)
	client.On("SendMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("timeout")).Once()

	a := newTestActions(client)
	_, err := a.Send(context.Background(), "body")
	assert.True(t, queue.IsConnectivity(err))
}

func TestPeek(t *testing.T) {
	client := new(MockSQSClient)
	withResolvedURL(client)
	client.On("ReceiveMessage", mock.Anything, mock.MatchedBy(func(in *sqs.ReceiveMessageInput) bool {
		return in.MaxNumberOfMessages == 1 && in.VisibilityTimeout == 1
	})).Return(&sqs.ReceiveMessageOutput{Messages: []types.Message{{
		MessageId:     aws.String("msg-1"),
		ReceiptHandle: aws.String("handle-1"),
		Body:          aws.String("body"),
		Attributes:    map[string]string{"SentTimestamp": "1709294400000"},
	}}}, nil).Once()
	client.On("ChangeMessageVisibility", mock.Anything, mock.MatchedBy(func(in *sqs.ChangeMessageVisibilityInput) bool {
		return aws.ToString(in.ReceiptHandle) == "handle-1" && in.VisibilityTimeout == 0
	})).Return(&sqs.ChangeMessageVisibilityOutput{}, nil).Once()

	a := newTestActions(client)
	msg, err := a.Peek(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "msg-1", msg.MessageID)
	assert.Equal(t, "body", msg.Body)
	assert.Equal(t, time.UnixMilli(1709294400000).UTC(), msg.InsertedOn)
	client.AssertExpectations(t)
}

func TestPeek_Empty(t *testing.T) {
	client := new(MockSQSClient)
	withResolvedURL(client)
	client.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{}, nil).Once()

	a := newTestActions(client)
	_, err := a.Peek(context.Background())
	assert.ErrorIs(t, err, queue.ErrEmptyQueue)
	client.AssertNotCalled(t, "ChangeMessageVisibility", mock.Anything, mock.Anything)
}

func TestReceive(t *testing.T) {
	client := new(MockSQSClient)
	withResolvedURL(client)
	client.On("ReceiveMessage", mock.Anything, mock.MatchedBy(func(in *sqs.ReceiveMessageInput) bool {
		return in.VisibilityTimeout == 30
	})).Return(&sqs.ReceiveMessageOutput{Messages: []types.Message{{
		MessageId:     aws.String("msg-1"),
		ReceiptHandle: aws.String("handle-1"),
		Body:          aws.String("body"),
		Attributes: map[string]string{
			"SentTimestamp":           "1709294400000",
			"ApproximateReceiveCount": "2",
		},
	}}}, nil).Once()

	a := newTestActions(client)
	msg, err := a.Receive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "msg-1", msg.MessageID)
	assert.Equal(t, "handle-1", msg.PopReceipt)
	assert.EqualValues(t, 2, msg.DequeueCount)
	assert.Equal(t, a.Now().Add(30*time.Second), msg.NextVisibleOn)
	client.AssertExpectations(t)
}

func TestDelete(t *testing.T) {
	client := new(MockSQSClient)
	withResolvedURL(client)
	client.On("DeleteMessage", mock.Anything, mock.MatchedBy(func(in *sqs.DeleteMessageInput) bool {
		return aws.ToString(in.ReceiptHandle) == "handle-1"
	})).Return(&sqs.DeleteMessageOutput{}, nil).Once()

	a := newTestActions(client)
	require.NoError(t, a.Delete(context.Background(), "msg-1", "handle-1"))
	client.AssertExpectations(t)
}

func TestDelete_InvalidReceipt(t *testing.T) {
	client := new(MockSQSClient)
	withResolvedURL(client)
	client.On("DeleteMessage", mock.Anything, mock.Anything).
		Return(nil, &types.ReceiptHandleIsInvalid{}).Once()

	a := newTestActions(client)
	err := a.Delete(context.Background(), "msg-1", "stale")
	assert.ErrorIs(t, err, queue.ErrMessageNotFound)
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.ErrorLevel)
	logger.SetLogger(zap.New(core))
	t.Cleanup(func() { require.NoError(t, logger.Setup("error")) })
	return logs
}

func TestFailuresAreLoggedWithCause(t *testing.T) {
	logs := observeLogs(t)
	client := new(MockSQSClient)
	withResolvedURL(client)
	client.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp: i/o timeout")).Once()
	client.On("DeleteMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("access denied")).Once()

	a := newTestActions(client)
	_, err := a.Receive(context.Background())
	require.True(t, queue.IsConnectivity(err))
	err = a.Delete(context.Background(), "msg-7", "handle-7")
	require.True(t, queue.IsConnectivity(err))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Message, "newsqueue")
	assert.Contains(t, entries[0].Message, "dial tcp: i/o timeout")
	assert.Contains(t, entries[1].Message, "msg-7")
	assert.Contains(t, entries[1].Message, "access denied")
	client.AssertExpectations(t)
}
