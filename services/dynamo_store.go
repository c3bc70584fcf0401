package services

import (
	"context"
	"fmt"
	"time"

	"kindred_server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoStore implements Store on DynamoDB. Conditional writes carry
// the correctness load: the active-pair guard and the match marker are
// attribute_not_exists puts, the daily quota is a condition-gated ADD,
// and the interest + guard + counter unit commits via
// TransactWriteItems.
type DynamoStore struct {
	svc *DynamoService
}

// NewDynamoStore wraps a DynamoService as the persistence layer.
func NewDynamoStore(svc *DynamoService) *DynamoStore {
	return &DynamoStore{svc: svc}
}

type pairGuard struct {
	PairKey    string `dynamodbav:"pairKey"`
	InterestID string `dynamodbav:"interestId"`
}

func stringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

func timeAttr(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

// CreateInterest commits the interest row, the active-pair guard and
// both users' counter bumps in one transaction. A guard collision
// cancels the whole transaction and surfaces as a conflict.
func (s *DynamoStore) CreateInterest(ctx context.Context, in *models.Interest) error {
	interestItem, err := attributevalue.MarshalMap(in)
	if err != nil {
		return fmt.Errorf("failed to marshal interest: %w", err)
	}
	guardItem, err := attributevalue.MarshalMap(pairGuard{
		PairKey:    models.PairKey(in.SenderID, in.ReceiverID),
		InterestID: in.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal pair guard: %w", err)
	}

	items := []types.TransactWriteItem{
		{Put: &types.Put{
			TableName: aws.String(models.InterestsTable),
			Item:      interestItem,
		}},
		{Put: &types.Put{
			TableName:           aws.String(models.ActivePairsTable),
			Item:                guardItem,
			ConditionExpression: aws.String("attribute_not_exists(pairKey)"),
		}},
		{Update: &types.Update{
			TableName:        aws.String(models.CountersTable),
			Key:              stringKey("userId", in.SenderID),
			UpdateExpression: aws.String("ADD sentCount :one"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one": &types.AttributeValueMemberN{Value: "1"},
			},
		}},
		{Update: &types.Update{
			TableName:        aws.String(models.CountersTable),
			Key:              stringKey("userId", in.ReceiverID),
			UpdateExpression: aws.String("ADD receivedCount :one, unreadCount :one"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one": &types.AttributeValueMemberN{Value: "1"},
			},
		}},
	}

	if err := s.svc.TransactWrite(ctx, items); err != nil {
		if isConditionalCheckFailed(err) {
			return &ConflictError{Reason: ConflictAlreadyExists}
		}
		return err
	}
	return nil
}

func (s *DynamoStore) GetInterest(ctx context.Context, id string) (*models.Interest, error) {
	item, err := s.svc.GetItem(ctx, models.InterestsTable, stringKey("interestId", id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &NotFoundError{Entity: "interest", ID: id}
	}

	var interest models.Interest
	if err := attributevalue.UnmarshalMap(item, &interest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal interest: %w", err)
	}
	return &interest, nil
}

// TransitionInterest compare-and-swaps the status inside a transaction
// that also releases the pair guard for non-active outcomes and settles
// the receiver's unread counter when the interest leaves pending
// unread.
func (s *DynamoStore) TransitionInterest(ctx context.Context, id, from, to string, at time.Time) (*models.Interest, error) {
	current, err := s.GetInterest(ctx, id)
	if err != nil {
		return nil, err
	}

	updateExpr := "SET #status = :to"
	values := map[string]types.AttributeValue{
		":to":   &types.AttributeValueMemberS{Value: to},
		":from": &types.AttributeValueMemberS{Value: from},
	}
	stampResponded := to == models.StatusAccepted || to == models.StatusDeclined
	if stampResponded {
		updateExpr += ", respondedAt = :at"
		values[":at"] = timeAttr(at)
	}

	items := []types.TransactWriteItem{
		{Update: &types.Update{
			TableName:                 aws.String(models.InterestsTable),
			Key:                       stringKey("interestId", id),
			UpdateExpression:          aws.String(updateExpr),
			ConditionExpression:       aws.String("#status = :from"),
			ExpressionAttributeNames:  map[string]string{"#status": "status"},
			ExpressionAttributeValues: values,
		}},
	}

	if !models.IsActiveStatus(to) {
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(models.ActivePairsTable),
			Key:       stringKey("pairKey", models.PairKey(current.SenderID, current.ReceiverID)),
		}})
	}
	if current.Status == models.StatusPending && !current.IsRead {
		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:        aws.String(models.CountersTable),
			Key:              stringKey("userId", current.ReceiverID),
			UpdateExpression: aws.String("ADD unreadCount :neg"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":neg": &types.AttributeValueMemberN{Value: "-1"},
			},
		}})
	}

	if err := s.svc.TransactWrite(ctx, items); err != nil {
		if isConditionalCheckFailed(err) {
			return nil, &ConflictError{Reason: ConflictStaleStatus}
		}
		return nil, err
	}

	current.Status = to
	if stampResponded {
		t := at
		current.RespondedAt = &t
	}
	return current, nil
}

// GetActiveInterestByPair resolves the ordered pair through the guard
// row with strongly consistent reads. The guard persists for pending
// and accepted interests, so a reciprocal accept that just committed is
// visible here even while the GSIs are still catching up.
func (s *DynamoStore) GetActiveInterestByPair(ctx context.Context, senderID, receiverID string) (*models.Interest, error) {
	guardItem, err := s.svc.GetItemStrong(ctx, models.ActivePairsTable,
		stringKey("pairKey", models.PairKey(senderID, receiverID)))
	if err != nil {
		return nil, err
	}
	if guardItem == nil {
		return nil, nil
	}

	var guard pairGuard
	if err := attributevalue.UnmarshalMap(guardItem, &guard); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pair guard: %w", err)
	}

	item, err := s.svc.GetItemStrong(ctx, models.InterestsTable, stringKey("interestId", guard.InterestID))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	var interest models.Interest
	if err := attributevalue.UnmarshalMap(item, &interest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal interest: %w", err)
	}
	return &interest, nil
}

func (s *DynamoStore) listByIndex(ctx context.Context, index, keyCondition, userID string) ([]models.Interest, error) {
	items, err := s.svc.QueryIndex(ctx, models.InterestsTable, index, keyCondition,
		map[string]types.AttributeValue{
			":user": &types.AttributeValueMemberS{Value: userID},
		}, 0)
	if err != nil {
		return nil, err
	}

	var interests []models.Interest
	if err := attributevalue.UnmarshalListOfMaps(items, &interests); err != nil {
		return nil, fmt.Errorf("failed to unmarshal interests: %w", err)
	}
	sortBySentAt(interests)
	return interests, nil
}

func (s *DynamoStore) ListBySender(ctx context.Context, userID string) ([]models.Interest, error) {
	return s.listByIndex(ctx, models.SenderIndex, "senderId = :user", userID)
}

func (s *DynamoStore) ListByReceiver(ctx context.Context, userID string) ([]models.Interest, error) {
	return s.listByIndex(ctx, models.ReceiverIndex, "receiverId = :user", userID)
}

func (s *DynamoStore) ListOverduePending(ctx context.Context, cutoff time.Time) ([]models.Interest, error) {
	items, err := s.svc.ScanWithFilter(ctx, models.InterestsTable,
		"#status = :pending AND expiresAt < :cutoff",
		map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: models.StatusPending},
			":cutoff":  timeAttr(cutoff),
		},
		map[string]string{"#status": "status"})
	if err != nil {
		return nil, err
	}

	var interests []models.Interest
	if err := attributevalue.UnmarshalListOfMaps(items, &interests); err != nil {
		return nil, fmt.Errorf("failed to unmarshal interests: %w", err)
	}
	sortBySentAt(interests)
	return interests, nil
}

// IncrementQuota bumps the per-(sender, day) counter, gated on staying
// under the limit. The failed condition is the limit breach.
func (s *DynamoStore) IncrementQuota(ctx context.Context, dayKey string, limit int) error {
	_, err := s.svc.UpdateItem(ctx, models.QuotaTable, stringKey("dayKey", dayKey),
		"ADD sends :one",
		"attribute_not_exists(sends) OR sends < :limit",
		map[string]types.AttributeValue{
			":one":   &types.AttributeValueMemberN{Value: "1"},
			":limit": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", limit)},
		}, nil)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return &LimitExceededError{Limit: limit}
		}
		return err
	}
	return nil
}

func (s *DynamoStore) RollbackQuota(ctx context.Context, dayKey string) error {
	_, err := s.svc.UpdateItem(ctx, models.QuotaTable, stringKey("dayKey", dayKey),
		"ADD sends :neg",
		"sends > :zero",
		map[string]types.AttributeValue{
			":neg":  &types.AttributeValueMemberN{Value: "-1"},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		}, nil)
	if err != nil && !isConditionalCheckFailed(err) {
		return err
	}
	return nil
}

// ClaimMatchMarker writes the marker only when the pair is unclaimed.
func (s *DynamoStore) ClaimMatchMarker(ctx context.Context, marker *models.MatchMarker) (bool, error) {
	err := s.svc.PutItem(ctx, models.MatchMarkersTable, marker, "attribute_not_exists(pairId)")
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *DynamoStore) AddCounters(ctx context.Context, userID string, delta models.CounterDelta) error {
	if delta.IsZero() {
		return nil
	}

	expr := "ADD "
	values := map[string]types.AttributeValue{}
	first := true
	add := func(field string, n int) {
		if n == 0 {
			return
		}
		if !first {
			expr += ", "
		}
		first = false
		placeholder := ":" + field
		expr += field + " " + placeholder
		values[placeholder] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", n)}
	}
	add("sentCount", delta.Sent)
	add("receivedCount", delta.Received)
	add("unreadCount", delta.Unread)
	add("mutualCount", delta.Mutual)

	_, err := s.svc.UpdateItem(ctx, models.CountersTable, stringKey("userId", userID), expr, "", values, nil)
	return err
}

func (s *DynamoStore) GetCounters(ctx context.Context, userID string) (models.UserCounters, error) {
	item, err := s.svc.GetItem(ctx, models.CountersTable, stringKey("userId", userID))
	if err != nil {
		return models.UserCounters{}, err
	}
	if item == nil {
		return models.UserCounters{UserID: userID}, nil
	}

	var counters models.UserCounters
	if err := attributevalue.UnmarshalMap(item, &counters); err != nil {
		return models.UserCounters{}, fmt.Errorf("failed to unmarshal counters: %w", err)
	}
	return counters, nil
}

func (s *DynamoStore) PutNotification(ctx context.Context, n *models.Notification) error {
	return s.svc.PutItem(ctx, models.NotificationsTable, n, "")
}

func (s *DynamoStore) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	item, err := s.svc.GetItem(ctx, models.NotificationsTable, stringKey("notificationId", id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &NotFoundError{Entity: "notification", ID: id}
	}

	var n models.Notification
	if err := attributevalue.UnmarshalMap(item, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	return &n, nil
}

func (s *DynamoStore) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	items, err := s.svc.QueryIndex(ctx, models.NotificationsTable, models.UserNotificationsIndex,
		"userId = :user",
		map[string]types.AttributeValue{
			":user": &types.AttributeValueMemberS{Value: userID},
		}, 0)
	if err != nil {
		return nil, err
	}

	var notifications []models.Notification
	if err := attributevalue.UnmarshalListOfMaps(items, &notifications); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationRead keeps the first readAt on repeat reads via
// if_not_exists.
func (s *DynamoStore) MarkNotificationRead(ctx context.Context, id string, at time.Time) (*models.Notification, error) {
	attrs, err := s.svc.UpdateItem(ctx, models.NotificationsTable, stringKey("notificationId", id),
		"SET isRead = :true, readAt = if_not_exists(readAt, :at)",
		"attribute_exists(notificationId)",
		map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":at":   timeAttr(at),
		}, nil)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return nil, &NotFoundError{Entity: "notification", ID: id}
		}
		return nil, err
	}

	var n models.Notification
	if err := attributevalue.UnmarshalMap(attrs, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	return &n, nil
}

func (s *DynamoStore) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error) {
	list, err := s.ListNotifications(ctx, userID)
	if err != nil {
		return 0, err
	}

	flipped := 0
	for i := range list {
		if list[i].IsRead {
			continue
		}
		if _, err := s.MarkNotificationRead(ctx, list[i].ID, at); err != nil {
			return flipped, err
		}
		flipped++
	}
	return flipped, nil
}
