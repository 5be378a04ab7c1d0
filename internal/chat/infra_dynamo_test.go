package chat

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	getOut      *dynamodb.GetItemOutput
	getErr      error
	putErr      error
	seq         int64
	seqErr      error
	touchErr    error
	queryPages  []*dynamodb.QueryOutput
	queryErr    error
	txErr       error
	lastPut     *dynamodb.PutItemInput
	lastGet     *dynamodb.GetItemInput
	lastTouch   *dynamodb.UpdateItemInput
	lastTx      *dynamodb.TransactWriteItemsInput
	queryInputs []dynamodb.QueryInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGet = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPut = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	pk := in.Key["PK"].(*types.AttributeValueMemberS).Value
	if pk == seqPK {
		if f.seqErr != nil {
			return nil, f.seqErr
		}
		f.seq++
		return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
			"seq": &types.AttributeValueMemberN{Value: strconv.FormatInt(f.seq, 10)},
		}}, nil
	}
	f.lastTouch = in
	return &dynamodb.UpdateItemOutput{}, f.touchErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryInputs = append(f.queryInputs, *in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryPages) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	page := f.queryPages[0]
	f.queryPages = f.queryPages[1:]
	return page, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTx = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func mustDynamoRepo(t *testing.T, db *fakeDynamo) Repo {
	t.Helper()
	r, err := NewDynamoRepo(db, "chat-table")
	require.NoError(t, err)
	return r
}

func fixConversationID(t *testing.T, id string) {
	t.Helper()
	orig := newConversationID
	newConversationID = func() string { return id }
	t.Cleanup(func() { newConversationID = orig })
}

func makeMessageItem(convID string, id int64, sender, content string, ts time.Time, isQuestion bool) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(convID)},
		"SK":             &types.AttributeValueMemberS{Value: msgSK(id)},
		"id":             &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
		"content":        &types.AttributeValueMemberS{Value: content},
		"sender":         &types.AttributeValueMemberS{Value: sender},
		"timestamp":      &types.AttributeValueMemberS{Value: formatTime(ts)},
		"conversationId": &types.AttributeValueMemberS{Value: convID},
		"isQuestion":     &types.AttributeValueMemberBOOL{Value: isQuestion},
	}
}

func TestNewDynamoRepo_Validates(t *testing.T) {
	_, err := NewDynamoRepo(nil, "t")
	require.Error(t, err)
	_, err = NewDynamoRepo(&fakeDynamo{}, " ")
	require.Error(t, err)
}

func TestMsgSK_SortsByID(t *testing.T) {
	require.Equal(t, "MSG#00000000000000000042", msgSK(42))
	require.Less(t, msgSK(9), msgSK(10))
}

func TestDynamo_CreateConversation(t *testing.T) {
	fixConversationID(t, "abc")
	freezeClock(t, time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	db := &fakeDynamo{}
	r := mustDynamoRepo(t, db)

	id, err := r.CreateConversation(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc", id)
	require.NotNil(t, db.lastPut)
	require.Equal(t, "chat-table", aws.ToString(db.lastPut.TableName))
	require.Equal(t, "attribute_not_exists(PK)", aws.ToString(db.lastPut.ConditionExpression))
	require.Equal(t, &types.AttributeValueMemberS{Value: "CONV#abc"}, db.lastPut.Item["PK"])
	require.Equal(t, &types.AttributeValueMemberS{Value: skMeta}, db.lastPut.Item["SK"])
	require.Equal(t, &types.AttributeValueMemberS{Value: "2024-05-06T07:08:09Z"}, db.lastPut.Item["lastActivity"])

	db.putErr = errors.New("throttled")
	_, err = r.CreateConversation(context.Background())
	require.ErrorContains(t, err, "create conversation")
}

func TestDynamo_GetConversation(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: convPK("abc")},
		"SK":           &types.AttributeValueMemberS{Value: skMeta},
		"createdAt":    &types.AttributeValueMemberS{Value: formatTime(ts)},
		"lastActivity": &types.AttributeValueMemberS{Value: formatTime(ts.Add(time.Hour))},
	}}}
	r := mustDynamoRepo(t, db)

	conv, err := r.GetConversation(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "abc", conv.ID)
	require.True(t, ts.Equal(conv.CreatedAt))
	require.True(t, ts.Add(time.Hour).Equal(conv.LastActivity))
	require.True(t, aws.ToBool(db.lastGet.ConsistentRead))

	db.getOut = &dynamodb.GetItemOutput{}
	_, err = r.GetConversation(context.Background(), "abc")
	require.ErrorIs(t, err, ErrConversationNotFound)

	db.getOut = &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"createdAt": &types.AttributeValueMemberS{Value: "yesterday"},
	}}
	_, err = r.GetConversation(context.Background(), "abc")
	require.ErrorContains(t, err, "createdAt")
}

func TestDynamo_AppendMessage(t *testing.T) {
	db := &fakeDynamo{seq: 41}
	r := mustDynamoRepo(t, db)

	require.NoError(t, r.AppendMessage(context.Background(), "abc", "why?", SenderUser, true))
	require.NotNil(t, db.lastTx)
	require.Len(t, db.lastTx.TransactItems, 2)

	check := db.lastTx.TransactItems[0].ConditionCheck
	require.NotNil(t, check)
	require.Equal(t, "attribute_exists(PK)", aws.ToString(check.ConditionExpression))
	require.Equal(t, metaKey("abc"), check.Key)

	put := db.lastTx.TransactItems[1].Put
	require.NotNil(t, put)
	require.Equal(t, &types.AttributeValueMemberS{Value: msgSK(42)}, put.Item["SK"])
	require.Equal(t, &types.AttributeValueMemberN{Value: "42"}, put.Item["id"])
	require.Equal(t, &types.AttributeValueMemberS{Value: "user"}, put.Item["sender"])
	require.Equal(t, &types.AttributeValueMemberBOOL{Value: true}, put.Item["isQuestion"])

	require.NoError(t, r.AppendMessage(context.Background(), "abc", "because", SenderBot, false))
	require.Equal(t, &types.AttributeValueMemberN{Value: "43"}, db.lastTx.TransactItems[1].Put.Item["id"])
}

func TestDynamo_AppendMessage_UnknownConversation(t *testing.T) {
	db := &fakeDynamo{txErr: &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("ConditionalCheckFailed")},
			{Code: aws.String("None")},
		},
	}}
	r := mustDynamoRepo(t, db)

	err := r.AppendMessage(context.Background(), "missing", "hi", SenderUser, false)
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestDynamo_AppendMessage_Errors(t *testing.T) {
	r := mustDynamoRepo(t, &fakeDynamo{})
	require.ErrorIs(t, r.AppendMessage(context.Background(), "abc", "hi", Sender("root"), false), ErrInvalidSender)

	r = mustDynamoRepo(t, &fakeDynamo{seqErr: errors.New("throttled")})
	err := r.AppendMessage(context.Background(), "abc", "hi", SenderUser, false)
	require.ErrorContains(t, err, "next message id")

	r = mustDynamoRepo(t, &fakeDynamo{txErr: errors.New("InternalServerError")})
	err = r.AppendMessage(context.Background(), "abc", "hi", SenderUser, false)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConversationNotFound)
}

func TestDynamo_TouchConversation(t *testing.T) {
	db := &fakeDynamo{}
	r := mustDynamoRepo(t, db)

	require.NoError(t, r.TouchConversation(context.Background(), "abc"))
	require.Equal(t, "SET lastActivity = :ts", aws.ToString(db.lastTouch.UpdateExpression))
	require.Equal(t, "attribute_exists(PK)", aws.ToString(db.lastTouch.ConditionExpression))

	db.touchErr = &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	require.ErrorIs(t, r.TouchConversation(context.Background(), "abc"), ErrConversationNotFound)

	db.touchErr = errors.New("throttled")
	err := r.TouchConversation(context.Background(), "abc")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConversationNotFound)
}

func TestDynamo_ListMessages_Paginates(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	lastKey := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: convPK("abc")},
		"SK": &types.AttributeValueMemberS{Value: msgSK(2)},
	}
	db := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{
		{
			Items: []map[string]types.AttributeValue{
				makeMessageItem("abc", 1, "user", "hello", ts, false),
				makeMessageItem("abc", 2, "bot", "Hi there!", ts, false),
			},
			LastEvaluatedKey: lastKey,
		},
		{
			Items: []map[string]types.AttributeValue{
				makeMessageItem("abc", 5, "user", "why?", ts.Add(time.Second), true),
			},
		},
	}}
	r := mustDynamoRepo(t, db)

	msgs, err := r.ListMessages(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, []int64{1, 2, 5}, []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	require.Equal(t, SenderBot, msgs[1].Sender)
	require.True(t, msgs[2].IsQuestion)

	require.Len(t, db.queryInputs, 2)
	require.True(t, aws.ToBool(db.queryInputs[0].ScanIndexForward))
	require.Nil(t, db.queryInputs[0].ExclusiveStartKey)
	require.Equal(t, lastKey, db.queryInputs[1].ExclusiveStartKey)
}

func TestDynamo_ListMessages_EmptyAndErrors(t *testing.T) {
	r := mustDynamoRepo(t, &fakeDynamo{})
	msgs, err := r.ListMessages(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, msgs)
	require.Empty(t, msgs)

	r = mustDynamoRepo(t, &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")})
	_, err = r.ListMessages(context.Background(), "abc")
	require.ErrorContains(t, err, "query")

	bad := makeMessageItem("abc", 1, "user", "hi", time.Now(), false)
	delete(bad, "content")
	r = mustDynamoRepo(t, &fakeDynamo{queryPages: []*dynamodb.QueryOutput{{Items: []map[string]types.AttributeValue{bad}}}})
	_, err = r.ListMessages(context.Background(), "abc")
	require.ErrorContains(t, err, "unmarshal")
}
