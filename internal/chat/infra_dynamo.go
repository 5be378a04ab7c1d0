package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"
	seqPK       = "SEQ#messages"
	seqSK       = "SEQ#"
)

// dynamodbAPI is the subset of *dynamodb.Client used by dynamoRepo.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// dynamoRepo stores conversations and messages in one DynamoDB table:
//
//	PK=CONV#<id> SK=META#          conversation
//	PK=CONV#<id> SK=MSG#<seq>      message, seq zero-padded so SK sorts by id
//	PK=SEQ#messages SK=SEQ#        message id counter
type dynamoRepo struct {
	api       dynamodbAPI
	tableName string
}

func NewDynamoRepo(api dynamodbAPI, tableName string) (Repo, error) {
	if api == nil {
		return nil, errors.New("chat: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("chat: dynamodb table name must not be empty")
	}
	return &dynamoRepo{api: api, tableName: tableName}, nil
}

func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

func msgSK(id int64) string {
	return fmt.Sprintf("%s%020d", skPrefixMsg, id)
}

func metaKey(conversationID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (r *dynamoRepo) CreateConversation(ctx context.Context) (string, error) {
	id := newConversationID()
	ts := formatTime(now())

	_, err := r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			"PK":             &types.AttributeValueMemberS{Value: convPK(id)},
			"SK":             &types.AttributeValueMemberS{Value: skMeta},
			"conversationId": &types.AttributeValueMemberS{Value: id},
			"createdAt":      &types.AttributeValueMemberS{Value: ts},
			"lastActivity":   &types.AttributeValueMemberS{Value: ts},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return "", fmt.Errorf("chat: create conversation: %w", err)
	}
	return id, nil
}

func (r *dynamoRepo) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	out, err := r.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            metaKey(conversationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Conversation{}, fmt.Errorf("chat: get conversation %q: %w", conversationID, err)
	}
	if out == nil || len(out.Item) == 0 {
		return Conversation{}, fmt.Errorf("chat: get conversation %q: %w", conversationID, ErrConversationNotFound)
	}

	c := Conversation{ID: conversationID}
	if c.CreatedAt, err = timeAttr(out.Item, "createdAt"); err != nil {
		return Conversation{}, fmt.Errorf("chat: get conversation %q: %w", conversationID, err)
	}
	if c.LastActivity, err = timeAttr(out.Item, "lastActivity"); err != nil {
		return Conversation{}, fmt.Errorf("chat: get conversation %q: %w", conversationID, err)
	}
	return c, nil
}

func (r *dynamoRepo) AppendMessage(ctx context.Context, conversationID, content string, sender Sender, isQuestion bool) error {
	if !sender.Valid() {
		return fmt.Errorf("chat: append message: %w", ErrInvalidSender)
	}

	id, err := r.nextMessageID(ctx)
	if err != nil {
		return fmt.Errorf("chat: append message to %q: %w", conversationID, err)
	}

	item := map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(conversationID)},
		"SK":             &types.AttributeValueMemberS{Value: msgSK(id)},
		"id":             &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
		"content":        &types.AttributeValueMemberS{Value: content},
		"sender":         &types.AttributeValueMemberS{Value: string(sender)},
		"timestamp":      &types.AttributeValueMemberS{Value: formatTime(now())},
		"conversationId": &types.AttributeValueMemberS{Value: conversationID},
		"isQuestion":     &types.AttributeValueMemberBOOL{Value: isQuestion},
	}

	_, err = r.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				ConditionCheck: &types.ConditionCheck{
					TableName:           aws.String(r.tableName),
					Key:                 metaKey(conversationID),
					ConditionExpression: aws.String("attribute_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(r.tableName),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
		},
	})
	if conversationCheckFailed(err) {
		return fmt.Errorf("chat: append message to %q: %w", conversationID, ErrConversationNotFound)
	}
	if err != nil {
		return fmt.Errorf("chat: append message to %q: %w", conversationID, err)
	}
	return nil
}

// nextMessageID bumps the shared counter item and returns the new value.
func (r *dynamoRepo) nextMessageID(ctx context.Context) (int64, error) {
	out, err := r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: seqPK},
			"SK": &types.AttributeValueMemberS{Value: seqSK},
		},
		UpdateExpression: aws.String("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("next message id: %w", err)
	}
	if out == nil {
		return 0, errors.New("next message id: empty response")
	}
	id, err := intAttr(out.Attributes, "seq")
	if err != nil {
		return 0, fmt.Errorf("next message id: %w", err)
	}
	return id, nil
}

// conversationCheckFailed reports whether a transaction was cancelled by the
// conversation existence check, which is always the first item.
func conversationCheckFailed(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) || len(tce.CancellationReasons) == 0 {
		return false
	}
	return aws.ToString(tce.CancellationReasons[0].Code) == "ConditionalCheckFailed"
}

func (r *dynamoRepo) TouchConversation(ctx context.Context, conversationID string) error {
	_, err := r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 metaKey(conversationID),
		UpdateExpression:    aws.String("SET lastActivity = :ts"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ts": &types.AttributeValueMemberS{Value: formatTime(now())},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("chat: touch conversation %q: %w", conversationID, ErrConversationNotFound)
	}
	if err != nil {
		return fmt.Errorf("chat: touch conversation %q: %w", conversationID, err)
	}
	return nil
}

func (r *dynamoRepo) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	out := []Message{}
	for {
		page, err := r.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("chat: list messages %q: query: %w", conversationID, err)
		}
		for _, item := range page.Items {
			m, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("chat: list messages %q: unmarshal: %w", conversationID, err)
			}
			out = append(out, m)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sortMessages(out)
	return out, nil
}

func itemToMessage(item map[string]types.AttributeValue) (Message, error) {
	id, err := intAttr(item, "id")
	if err != nil {
		return Message{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return Message{}, err
	}
	sender, err := strAttr(item, "sender")
	if err != nil {
		return Message{}, err
	}
	ts, err := timeAttr(item, "timestamp")
	if err != nil {
		return Message{}, err
	}
	convID, err := strAttr(item, "conversationId")
	if err != nil {
		return Message{}, err
	}
	isQuestion, _ := boolAttr(item, "isQuestion") // absent means false

	return Message{
		ID:             id,
		Content:        content,
		Sender:         Sender(sender),
		Timestamp:      ts,
		ConversationID: convID,
		IsQuestion:     isQuestion,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) (bool, error) {
	v, ok := item[key]
	if !ok {
		return false, fmt.Errorf("missing attribute %q", key)
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, fmt.Errorf("attribute %q is not a bool", key)
	}
	return b.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return t, nil
}
