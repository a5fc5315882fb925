package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/inkwell/content-platform/internal/core/domain"
	"github.com/inkwell/content-platform/internal/core/ports"
	"github.com/inkwell/content-platform/internal/pkg/password"
)

const collectionUsers = "users"

// Index names double as the discriminator for duplicate-key errors.
const (
	indexUsernameUnique = "username_unique"
	indexEmailUnique    = "email_unique"
)

// UserRepository implements ports.UserRepository using MongoDB.
// Username and email uniqueness is guaranteed by unique indexes; the
// service-level existence pre-checks are advisory only.
type UserRepository struct {
	col    *mongo.Collection
	hasher *password.Hasher
}

func NewUserRepository(db *mongo.Database, hasher *password.Hasher) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers), hasher: hasher}
}

// userDoc is the persisted shape of a user record.
type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	Role         string             `bson:"role"`
	Title        string             `bson:"title,omitempty"`
	IsActive     bool               `bson:"is_active"`
	DeletedAt    *time.Time         `bson:"deleted_at,omitempty"`
	RefreshToken string             `bson:"refresh_token,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         domain.Role(d.Role),
		Title:        d.Title,
		IsActive:     d.IsActive,
		DeletedAt:    d.DeletedAt,
		RefreshToken: d.RefreshToken,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// EnsureIndexes creates the unique indexes that arbitrate concurrent
// writes racing to claim the same username or email.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(indexUsernameUnique),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(indexEmailUnique),
		},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "role", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create inserts a new user document. Timestamps are assigned here;
// the caller must have hashed the password already.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	doc := userDoc{
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		Title:        user.Title,
		IsActive:     user.IsActive,
		RefreshToken: user.RefreshToken,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, duplicateKeyError(err)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	doc.ID = res.InsertedID.(primitive.ObjectID)
	return doc.toDomain(), nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// A malformed id cannot match any document.
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// FindByRole returns the first user holding the given role.
func (r *UserRepository) FindByRole(ctx context.Context, role domain.Role) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"role": string(role)})
}

func (r *UserRepository) FindByRefreshToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"refresh_token": token})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDoc
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

// Update merges patch into the record and returns the updated record,
// or (nil, nil) when the id does not resolve.
func (r *UserRepository) Update(ctx context.Context, id string, patch ports.UserPatch) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Username != nil {
		set["username"] = *patch.Username
	}
	if patch.Email != nil {
		set["email"] = *patch.Email
	}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Role != nil {
		set["role"] = string(*patch.Role)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDoc
	err = r.col.FindOneAndUpdate(
		ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, duplicateKeyError(err)
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return doc.toDomain(), nil
}

// UpdateRefreshToken overwrites the refresh token wholesale. An empty
// token clears it; no history is kept.
func (r *UserRepository) UpdateRefreshToken(ctx context.Context, id string, token string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"refresh_token": token}})
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ChangePassword loads the stored hash (the one read path that needs
// it), verifies the current password, and on a match writes the hash
// of the new one. A mismatch is (false, nil), not an error.
func (r *UserRepository) ChangePassword(ctx context.Context, id, currentPlain, newPlain string) (bool, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, domain.ErrUserNotFound
	}

	if !r.hasher.Verify(currentPlain, user.PasswordHash) {
		return false, nil
	}

	hash, err := r.hasher.Hash(newPlain)
	if err != nil {
		return false, fmt.Errorf("hash new password: %w", err)
	}

	oid, _ := primitive.ObjectIDFromHex(id)
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = r.col.UpdateByID(ctx, oid, bson.M{"$set": bson.M{
		"password_hash": hash,
		"updated_at":    time.Now().UTC(),
	}})
	if err != nil {
		return false, fmt.Errorf("update password: %w", err)
	}
	return true, nil
}

// SoftDelete marks the record inactive and stamps deleted_at in one
// atomic update.
func (r *UserRepository) SoftDelete(ctx context.Context, id string) (*domain.User, error) {
	now := time.Now().UTC()
	return r.setActive(ctx, id, bson.M{
		"is_active":  false,
		"deleted_at": now,
		"updated_at": now,
	})
}

// Restore reactivates a soft-deleted record and clears deleted_at.
func (r *UserRepository) Restore(ctx context.Context, id string) (*domain.User, error) {
	return r.setActive(ctx, id, bson.M{
		"is_active":  true,
		"deleted_at": nil,
		"updated_at": time.Now().UTC(),
	})
}

func (r *UserRepository) setActive(ctx context.Context, id string, set bson.M) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDoc
	err = r.col.FindOneAndUpdate(
		ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("toggle user active: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, bson.M{"email": email})
}

func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, bson.M{"username": username})
}

func (r *UserRepository) exists(ctx context.Context, filter bson.M) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n > 0, nil
}

// List returns a page of users ordered by creation time descending,
// plus the total count matching the filter. Soft-deleted users are
// included; callers that want only active accounts must say so.
func (r *UserRepository) List(ctx context.Context, filter ports.ListUsersFilter) ([]*domain.User, int64, error) {
	query := bson.M{}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"username": pattern},
			bson.M{"email": pattern},
		}
	}
	if filter.Role != "" {
		query["role"] = string(filter.Role)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	skip := int64(filter.Page-1) * int64(filter.Limit)
	cursor, err := r.col.Find(ctx, query, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(int64(filter.Limit)))
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []*domain.User
	for cursor.Next(ctx) {
		var doc userDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("decode user: %w", err)
		}
		users = append(users, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	return users, total, nil
}

// BulkUpdateRole sets role on every matching id in one UpdateMany.
// Malformed and unknown ids are skipped; the returned count is the
// number of documents actually modified.
func (r *UserRepository) BulkUpdateRole(ctx context.Context, ids []string, role domain.Role) (int64, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateMany(
		ctx,
		bson.M{"_id": bson.M{"$in": oids}},
		bson.M{"$set": bson.M{"role": string(role), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("bulk update role: %w", err)
	}
	return res.ModifiedCount, nil
}

// StatsByRole groups users by role and counts each bucket.
func (r *UserRepository) StatsByRole(ctx context.Context) ([]ports.RoleCount, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$role",
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$project", Value: bson.M{
			"role":  "$_id",
			"count": 1,
			"_id":   0,
		}}},
	}

	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("stats by role: %w", err)
	}
	defer cursor.Close(ctx)

	var stats []ports.RoleCount
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("decode role stats: %w", err)
	}
	return stats, nil
}

// duplicateKeyError maps a unique index violation to the field-level
// conflict sentinel, keyed off the index name embedded in the error.
func duplicateKeyError(err error) error {
	if strings.Contains(err.Error(), indexEmailUnique) {
		return domain.ErrEmailTaken
	}
	return domain.ErrUsernameTaken
}
