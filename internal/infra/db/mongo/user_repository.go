package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	domainuser "shopme/internal/domain/user"
)

// UserRepository reads the profile fields the messaging core needs and
// mirrors the advisory online flag.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection("users")}
}

func (r *UserRepository) ByID(ctx context.Context, id string) (*domainuser.User, error) {
	var doc userDocument
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domainuser.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *UserRepository) SetOnlineFlag(ctx context.Context, id string, online bool, at time.Time) error {
	set := bson.M{"online": online}
	if !online {
		set["last_seen_at"] = at.UnixMilli()
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainuser.ErrNotFound
	}
	return nil
}

// AppendPushToken stores token as the user's freshest push target. The
// token is pulled first so a re-registered device moves to the end
// instead of duplicating.
func (r *UserRepository) AppendPushToken(ctx context.Context, id, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domainuser.ErrTokenRequired
	}
	if _, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$pull": bson.M{"push_tokens": token}}); err != nil {
		return err
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$push": bson.M{"push_tokens": token}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainuser.ErrNotFound
	}
	return nil
}

type userDocument struct {
	ID          string   `bson:"_id"`
	DisplayName string   `bson:"display_name"`
	AvatarKey   string   `bson:"avatar_key,omitempty"`
	PushTokens  []string `bson:"push_tokens,omitempty"`
	Online      bool     `bson:"online"`
	LastSeenAt  int64    `bson:"last_seen_at,omitempty"`
	CreatedAt   int64    `bson:"created_at,omitempty"`
}

func (d userDocument) toAggregate() *domainuser.User {
	u := &domainuser.User{
		ID:          d.ID,
		DisplayName: d.DisplayName,
		AvatarKey:   d.AvatarKey,
		PushTokens:  append([]string(nil), d.PushTokens...),
		Online:      d.Online,
	}
	if d.LastSeenAt > 0 {
		u.LastSeenAt = timestampToTime(d.LastSeenAt)
	}
	if d.CreatedAt > 0 {
		u.CreatedAt = timestampToTime(d.CreatedAt)
	}
	return u
}

var _ domainuser.Store = (*UserRepository)(nil)
