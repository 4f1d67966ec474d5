package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appchat "shopme/internal/app/chat"
	domainchat "shopme/internal/domain/chat"
)

// ConversationRepository persists conversations and messages. A unique
// index on pair_key keeps the one-conversation-per-pair invariant even
// under concurrent creates.
type ConversationRepository struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
	}
}

// EnsureIndexes creates the indexes the repository relies on.
func (r *ConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "pair_key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

func (r *ConversationRepository) FindByParticipants(ctx context.Context, a, b string) (*domainchat.Conversation, error) {
	var doc conversationDocument
	err := r.conversations.FindOne(ctx, bson.M{"pair_key": domainchat.PairKey(a, b)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domainchat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) CreateConversation(ctx context.Context, a, b string) (*domainchat.Conversation, error) {
	conv, err := domainchat.NewConversation(a, b)
	if err != nil {
		return nil, err
	}
	if _, err := r.conversations.InsertOne(ctx, newConversationDocument(conv)); err != nil {
		// Lost a lookup-or-create race; the surviving record wins.
		if mongo.IsDuplicateKeyError(err) {
			return r.FindByParticipants(ctx, a, b)
		}
		return nil, err
	}
	return conv, nil
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, conversationID string, msg *domainchat.Message) error {
	stored := *msg
	stored.ConversationID = conversationID
	if _, err := r.messages.InsertOne(ctx, newMessageDocument(&stored)); err != nil {
		return err
	}
	update := bson.M{
		"$set":  bson.M{"last_message_at": stored.CreatedAt.UnixMilli()},
		"$push": bson.M{"message_ids": stored.ID},
	}
	res, err := r.conversations.UpdateOne(ctx, bson.M{"_id": conversationID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]domainchat.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []domainchat.Message
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.toAggregate())
	}
	return out, cursor.Err()
}

func (r *ConversationRepository) UpdateStatus(ctx context.Context, messageID string, status domainchat.Status) (bool, error) {
	if !status.Valid() {
		return false, domainchat.ErrStatusRegression
	}
	// The filter admits only stages the target may legally follow, so a
	// concurrent advance simply matches nothing.
	var allowed []string
	switch status {
	case domainchat.StatusDelivered:
		allowed = []string{string(domainchat.StatusSent)}
	case domainchat.StatusRead:
		allowed = []string{string(domainchat.StatusSent), string(domainchat.StatusDelivered)}
	default:
		return false, domainchat.ErrStatusRegression
	}
	filter := bson.M{"_id": messageID, "status": bson.M{"$in": allowed}}
	res, err := r.messages.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return false, err
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}
	// Distinguish an already-advanced message from a missing one.
	count, err := r.messages.CountDocuments(ctx, bson.M{"_id": messageID})
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, domainchat.ErrNotFound
	}
	return false, nil
}

func (r *ConversationRepository) MarkConversationRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"receiver_id":     receiverID,
		"status":          string(domainchat.StatusDelivered),
	}
	res, err := r.messages.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"status": string(domainchat.StatusRead)}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

type conversationDocument struct {
	ID            string   `bson:"_id"`
	PairKey       string   `bson:"pair_key"`
	Participants  []string `bson:"participants"`
	MessageIDs    []string `bson:"message_ids"`
	CreatedAt     int64    `bson:"created_at"`
	LastMessageAt int64    `bson:"last_message_at,omitempty"`
}

func newConversationDocument(conv *domainchat.Conversation) conversationDocument {
	return conversationDocument{
		ID:           conv.ID,
		PairKey:      conv.PairKey,
		Participants: []string{conv.Participants[0], conv.Participants[1]},
		MessageIDs:   []string{},
		CreatedAt:    conv.CreatedAt.UnixMilli(),
	}
}

func (d conversationDocument) toAggregate() *domainchat.Conversation {
	conv := &domainchat.Conversation{
		ID:        d.ID,
		PairKey:   d.PairKey,
		CreatedAt: timestampToTime(d.CreatedAt),
	}
	if len(d.Participants) == 2 {
		conv.Participants = [2]string{d.Participants[0], d.Participants[1]}
	}
	if d.LastMessageAt > 0 {
		conv.LastMessageAt = timestampToTime(d.LastMessageAt)
	}
	return conv
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	ReceiverID     string `bson:"receiver_id"`
	Body           string `bson:"body"`
	Status         string `bson:"status"`
	CreatedAt      int64  `bson:"created_at"`
}

func newMessageDocument(msg *domainchat.Message) messageDocument {
	return messageDocument{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Body:           msg.Body,
		Status:         string(msg.Status),
		CreatedAt:      msg.CreatedAt.UnixMilli(),
	}
}

func (d messageDocument) toAggregate() *domainchat.Message {
	return &domainchat.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		ReceiverID:     d.ReceiverID,
		Body:           d.Body,
		Status:         domainchat.Status(d.Status),
		CreatedAt:      timestampToTime(d.CreatedAt),
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ appchat.Store = (*ConversationRepository)(nil)
