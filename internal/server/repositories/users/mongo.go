package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionName is the MongoDB collection holding users.
const CollectionName = "users"

const referralCodeIndex = "referralCode_1"

var noSecrets = bson.M{"password": 0, "resetPasswordToken": 0, "resetPasswordExpires": 0}

type userDocument struct {
	ID                   bson.ObjectID   `bson:"_id,omitempty"`
	Username             string          `bson:"username"`
	Email                string          `bson:"email"`
	Password             string          `bson:"password,omitempty"`
	Role                 string          `bson:"role"`
	Status               string          `bson:"status"`
	ReferralCode         string          `bson:"referralCode,omitempty"`
	ReferredBy           *bson.ObjectID  `bson:"referredBy,omitempty"`
	RewardPoints         int             `bson:"rewardPoints"`
	OnboardingCompleted  bool            `bson:"onboardingCompleted"`
	Profile              models.Profile  `bson:"profileData"`
	Settings             models.Settings `bson:"settings"`
	ResetPasswordToken   string          `bson:"resetPasswordToken,omitempty"`
	ResetPasswordExpires *time.Time      `bson:"resetPasswordExpires,omitempty"`
	CreatedAt            time.Time       `bson:"createdAt"`
	UpdatedAt            time.Time       `bson:"updatedAt"`
}

func toDocument(u *models.User) (*userDocument, error) {
	d := &userDocument{
		Username:            u.Username,
		Email:               u.Email,
		Role:                string(u.Role),
		Status:              string(u.Status),
		ReferralCode:        u.ReferralCode,
		RewardPoints:        u.RewardPoints,
		OnboardingCompleted: u.OnboardingCompleted,
		Profile:             u.Profile,
		Settings:            u.Settings,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
	if u.ID != "" {
		id, err := bson.ObjectIDFromHex(u.ID)
		if err != nil {
			return nil, common.ErrorNotFound
		}
		d.ID = id
	}
	if u.ReferredBy != "" {
		ref, err := bson.ObjectIDFromHex(u.ReferredBy)
		if err != nil {
			return nil, fmt.Errorf("%w: bad referrer id", common.ErrorValidation)
		}
		d.ReferredBy = &ref
	}
	if c := u.Credentials; c != nil {
		d.Password = c.PasswordHash
		d.ResetPasswordToken = c.ResetTokenHash
		d.ResetPasswordExpires = c.ResetExpiresAt
	}
	return d, nil
}

func (d *userDocument) toModel(withSecrets bool) *models.User {
	u := &models.User{
		ID:                  d.ID.Hex(),
		Username:            d.Username,
		Email:               d.Email,
		Role:                models.Role(d.Role),
		Status:              models.Status(d.Status),
		ReferralCode:        d.ReferralCode,
		RewardPoints:        d.RewardPoints,
		OnboardingCompleted: d.OnboardingCompleted,
		Profile:             d.Profile,
		Settings:            d.Settings,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
	if d.ReferredBy != nil {
		u.ReferredBy = d.ReferredBy.Hex()
	}
	if withSecrets {
		u.Credentials = &models.Credentials{
			PasswordHash:   d.Password,
			ResetTokenHash: d.ResetPasswordToken,
			ResetExpiresAt: d.ResetPasswordExpires,
		}
	}
	return u
}

// MongoRepository stores users in a single MongoDB collection.
type MongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(CollectionName)}
}

// EnsureIndexes creates the unique indexes that back the identity and
// referral-code invariants, plus a lookup index for reset hashes.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_1")},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName("username_1")},
		{Keys: bson.D{{Key: "referralCode", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true).SetName(referralCodeIndex)},
		{Keys: bson.D{{Key: "resetPasswordToken", Value: 1}}, Options: options.Index().SetSparse(true).SetName("resetPasswordToken_1")},
		{Keys: bson.D{{Key: "referredBy", Value: 1}}, Options: options.Index().SetSparse(true).SetName("referredBy_1")},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) Insert(ctx context.Context, u *models.User) error {
	if u.Credentials == nil || u.Credentials.PasswordHash == "" {
		return fmt.Errorf("%w: password hash is required", common.ErrorValidation)
	}

	now := time.Now().UTC()
	u.ID = ""
	u.CreatedAt, u.UpdatedAt = now, now

	doc, err := toDocument(u)
	if err != nil {
		return err
	}
	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		u.CreatedAt, u.UpdatedAt = time.Time{}, time.Time{}
		return mapMongoWriteError(err)
	}
	if oid, ok := res.InsertedID.(bson.ObjectID); ok {
		u.ID = oid.Hex()
	}
	return nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id string, opts ...FindOption) (*models.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, common.ErrorNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid}, applyFindOptions(opts))
}

func (r *MongoRepository) FindByEmail(ctx context.Context, email string, opts ...FindOption) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email}, applyFindOptions(opts))
}

func (r *MongoRepository) FindByUsername(ctx context.Context, username string, opts ...FindOption) (*models.User, error) {
	return r.findOne(ctx, bson.M{"username": username}, applyFindOptions(opts))
}

func (r *MongoRepository) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"referralCode": code}, FindOptions{})
}

// projection returns the field projection for a read; nil keeps every field.
func projection(o FindOptions) bson.M {
	if o.WithSecrets {
		return nil
	}
	return noSecrets
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M, o FindOptions) (*models.User, error) {
	findOpts := options.FindOne()
	if p := projection(o); p != nil {
		findOpts.SetProjection(p)
	}

	var doc userDocument
	if err := r.coll.FindOne(ctx, filter, findOpts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc.toModel(o.WithSecrets), nil
}

func (r *MongoRepository) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	filter := bson.M{"$or": bson.A{bson.M{"email": email}, bson.M{"username": username}}}
	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *MongoRepository) Update(ctx context.Context, u *models.User) error {
	doc, err := toDocument(u)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": doc.ID}, updateDocument(doc, u.Credentials != nil, now))
	if err != nil {
		return mapMongoWriteError(err)
	}
	if res.MatchedCount == 0 {
		return common.ErrorNotFound
	}
	u.UpdatedAt = now
	return nil
}

// updateDocument builds the $set/$unset update for doc. Secret fields are
// only touched when withCredentials is set; an empty reset hash removes both
// reset fields.
func updateDocument(doc *userDocument, withCredentials bool, now time.Time) bson.M {
	set := bson.M{
		"username":            doc.Username,
		"email":               doc.Email,
		"role":                doc.Role,
		"status":              doc.Status,
		"rewardPoints":        doc.RewardPoints,
		"onboardingCompleted": doc.OnboardingCompleted,
		"profileData":         doc.Profile,
		"settings":            doc.Settings,
		"updatedAt":           now,
	}
	unset := bson.M{}

	if doc.ReferralCode != "" {
		set["referralCode"] = doc.ReferralCode
	} else {
		unset["referralCode"] = ""
	}
	if doc.ReferredBy != nil {
		set["referredBy"] = doc.ReferredBy
	} else {
		unset["referredBy"] = ""
	}

	if withCredentials {
		set["password"] = doc.Password
		if doc.ResetPasswordToken != "" {
			set["resetPasswordToken"] = doc.ResetPasswordToken
			set["resetPasswordExpires"] = doc.ResetPasswordExpires
		} else {
			unset["resetPasswordToken"] = ""
			unset["resetPasswordExpires"] = ""
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (r *MongoRepository) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error) {
	var doc struct {
		ID bson.ObjectID `bson:"_id"`
	}
	err := r.coll.FindOneAndUpdate(ctx, resetConsumeFilter(tokenHash, now), resetConsumeUpdate(newPasswordHash, now),
		options.FindOneAndUpdate().SetProjection(bson.M{"_id": 1})).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return doc.ID.Hex(), nil
}

// resetConsumeFilter matches only a stored digest that has not expired.
func resetConsumeFilter(tokenHash string, now time.Time) bson.M {
	return bson.M{
		"resetPasswordToken":   tokenHash,
		"resetPasswordExpires": bson.M{"$gt": now},
	}
}

// resetConsumeUpdate replaces the password and removes both reset fields, so
// the same digest can never match again.
func resetConsumeUpdate(newPasswordHash string, now time.Time) bson.M {
	return bson.M{
		"$set":   bson.M{"password": newPasswordHash, "updatedAt": now},
		"$unset": bson.M{"resetPasswordToken": "", "resetPasswordExpires": ""},
	}
}

func (r *MongoRepository) AddRewardPoints(ctx context.Context, id string, points int) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return common.ErrorNotFound
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$inc": bson.M{"rewardPoints": points},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *MongoRepository) List(ctx context.Context, offset, limit int) ([]*models.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetProjection(projection(FindOptions{}))
	return r.findMany(ctx, bson.M{}, opts)
}

func (r *MongoRepository) ListReferredBy(ctx context.Context, referrerID string) ([]*models.User, error) {
	oid, err := bson.ObjectIDFromHex(referrerID)
	if err != nil {
		return []*models.User{}, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetProjection(projection(FindOptions{}))
	return r.findMany(ctx, bson.M{"referredBy": oid}, opts)
}

func (r *MongoRepository) findMany(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*models.User, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	result := make([]*models.User, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].toModel(false))
	}
	return result, nil
}

func (r *MongoRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return common.ErrorNotFound
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.DeletedCount == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func mapMongoWriteError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), referralCodeIndex) {
			return fmt.Errorf("%w: %v", common.ErrDuplicateReferralCode, err)
		}
		return fmt.Errorf("%w: %v", common.ErrDuplicateIdentity, err)
	}
	return fmt.Errorf("db error: %w", err)
}
