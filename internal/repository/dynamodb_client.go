package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"realty-agent/internal/domain"
)

const (
	pkPrefixSender = "SENDER#"
	pkPrefixDate   = "DATE#"
	skPrefixMsg    = "MSG#"
	skPrefixAppt   = "APPT#"
	ttlDuration    = 30 * 24 * time.Hour // 30-day TTL on conversation turns
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Client wraps a single DynamoDB table holding conversation turns
// (SENDER# partitions) and appointments (DATE# partitions).
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func senderPK(sender string) string {
	return pkPrefixSender + sender
}

func datePK(date string) string {
	return pkPrefixDate + date
}

// msgSK returns the sort key for a turn using the current UTC timestamp.
func msgSK(ts time.Time) string {
	return skPrefixMsg + ts.UTC().Format(time.RFC3339Nano)
}

// apptSK returns the sort key for an appointment. The uuid suffix keeps two
// appointments at the same clock time from colliding.
func apptSK(clockTime string) string {
	return skPrefixAppt + clockTime + "#" + uuid.NewString()
}

// ttlValue returns a Unix timestamp 30 days in the future.
func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// RecentTurns returns the most recent limit turns for a sender, oldest first.
func (c *Client) RecentTurns(ctx context.Context, sender string, limit int) ([]domain.Turn, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: senderPK(sender)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: RecentTurns query: %w", err)
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: RecentTurns unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	// Reverse to chronological order before returning to prompt assembly.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// SaveTurn persists one conversation turn, filling in keys and TTL.
func (c *Client) SaveTurn(ctx context.Context, turn domain.Turn) error {
	if strings.TrimSpace(turn.Sender) == "" {
		return errors.New("repository: SaveTurn: sender is required")
	}
	turn.PK = senderPK(turn.Sender)
	turn.SK = msgSK(time.Now())
	turn.TTL = ttlValue()

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                turnItem(turn),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return nil
}

// PutAppointment persists one appointment record, filling in keys.
func (c *Client) PutAppointment(ctx context.Context, appt domain.Appointment) error {
	if appt.Date == "" || appt.Time == "" {
		return errors.New("repository: PutAppointment: date and time are required")
	}
	appt.PK = datePK(appt.Date)
	appt.SK = apptSK(appt.Time)

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                appointmentItem(appt),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: PutAppointment: %w", err)
	}
	return nil
}

// BookingsInWindow returns non-cancellation appointments on date whose clock
// time lies in [start, end], both bounds inclusive. HH:MM strings compare
// lexicographically in time order; a wrapped window where start > end
// matches nothing.
func (c *Client) BookingsInWindow(ctx context.Context, date, start, end string) ([]domain.Appointment, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		FilterExpression:       aws.String("#t >= :start AND #t <= :end AND #k <> :cancel"),
		ExpressionAttributeNames: map[string]string{
			"#t": "time",
			"#k": "kind",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: datePK(date)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixAppt},
			":start":  &types.AttributeValueMemberS{Value: start},
			":end":    &types.AttributeValueMemberS{Value: end},
			":cancel": &types.AttributeValueMemberS{Value: string(domain.KindCancellation)},
		},
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: BookingsInWindow query: %w", err)
	}

	appts := make([]domain.Appointment, 0, len(out.Items))
	for _, item := range out.Items {
		appt, err := itemToAppointment(item)
		if err != nil {
			return nil, fmt.Errorf("repository: BookingsInWindow unmarshal: %w", err)
		}
		appts = append(appts, appt)
	}
	return appts, nil
}

// ListAppointments returns every appointment record in the table. Used by
// the spreadsheet mirror, which rewrites the full sheet on each sync.
func (c *Client) ListAppointments(ctx context.Context) ([]domain.Appointment, error) {
	var appts []domain.Appointment
	var startKey map[string]types.AttributeValue

	for {
		out, err := c.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(c.tableName),
			FilterExpression: aws.String("begins_with(PK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: pkPrefixDate},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: ListAppointments scan: %w", err)
		}
		for _, item := range out.Items {
			appt, err := itemToAppointment(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListAppointments unmarshal: %w", err)
			}
			appts = append(appts, appt)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return appts, nil
}

func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Turn{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Turn{}, err
	}
	inbound, err := strAttr(item, "inbound")
	if err != nil {
		return domain.Turn{}, err
	}
	outbound, _ := strAttr(item, "outbound") // allow empty
	sender, _ := strAttr(item, "sender")     // allow empty

	return domain.Turn{
		PK:       pk,
		SK:       sk,
		Sender:   sender,
		Inbound:  inbound,
		Outbound: outbound,
	}, nil
}

func itemToAppointment(item map[string]types.AttributeValue) (domain.Appointment, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Appointment{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Appointment{}, err
	}
	date, err := strAttr(item, "date")
	if err != nil {
		return domain.Appointment{}, err
	}
	clockTime, err := strAttr(item, "time")
	if err != nil {
		return domain.Appointment{}, err
	}
	kind, err := strAttr(item, "kind")
	if err != nil {
		return domain.Appointment{}, err
	}
	name, _ := strAttr(item, "name")   // allow empty
	phone, _ := strAttr(item, "phone") // allow empty

	return domain.Appointment{
		PK:    pk,
		SK:    sk,
		Phone: phone,
		Name:  name,
		Kind:  domain.AppointmentKind(kind),
		Date:  date,
		Time:  clockTime,
	}, nil
}

func turnItem(turn domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":       &types.AttributeValueMemberS{Value: turn.PK},
		"SK":       &types.AttributeValueMemberS{Value: turn.SK},
		"sender":   &types.AttributeValueMemberS{Value: turn.Sender},
		"inbound":  &types.AttributeValueMemberS{Value: turn.Inbound},
		"outbound": &types.AttributeValueMemberS{Value: turn.Outbound},
		"ttl":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", turn.TTL)},
	}
}

func appointmentItem(appt domain.Appointment) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":    &types.AttributeValueMemberS{Value: appt.PK},
		"SK":    &types.AttributeValueMemberS{Value: appt.SK},
		"phone": &types.AttributeValueMemberS{Value: appt.Phone},
		"name":  &types.AttributeValueMemberS{Value: appt.Name},
		"kind":  &types.AttributeValueMemberS{Value: string(appt.Kind)},
		"date":  &types.AttributeValueMemberS{Value: appt.Date},
		"time":  &types.AttributeValueMemberS{Value: appt.Time},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
