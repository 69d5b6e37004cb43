package revocations

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bantx/internal/server/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const CollectionName = "revoked_tokens"

// MongoRepository keeps revoked ids in a collection whose TTL index lets the
// server drop entries once the token has expired.
type MongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(CollectionName)}
}

func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tokenId", Value: 1}}, Options: options.Index().SetUnique(true).SetName("tokenId_1")},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0).SetName("expiresAt_ttl")},
	})
	if err != nil {
		return fmt.Errorf("create revocation indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) Revoke(ctx context.Context, token models.RevokedToken) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"tokenId": token.TokenID},
		bson.M{"$setOnInsert": bson.M{
			"tokenId":   token.TokenID,
			"userId":    token.UserID,
			"expiresAt": token.ExpiresAt,
			"createdAt": time.Now().UTC(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *MongoRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"tokenId": tokenID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

// PurgeExpired removes what the TTL monitor has not collected yet.
func (r *MongoRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.DeletedCount, nil
}
