package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/desvo/klab-feed/internal/models"
)

const usersCollection = "users"

// UserStore handles account CRUD against the users collection.
type UserStore struct {
	col *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{col: db.Collection(usersCollection)}
}

// Create inserts a new account. A duplicate username surfaces as
// ErrUsernameTaken, whether it is caught by the caller's existence check
// or by the unique index during a registration race.
func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	u.CreatedAt = time.Now()
	if u.Friends == nil {
		u.Friends = []string{}
	}
	if u.Redirect == "" {
		u.Redirect = "/posts"
	}
	if _, err := s.col.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.col.FindOne(ctx, bson.M{"username": username}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// Search matches usernames containing query, case-insensitively, skipping
// every name in exclude (the searcher and their current friends).
func (s *UserStore) Search(ctx context.Context, query string, exclude []string) ([]models.User, error) {
	filter := bson.M{
		"username": bson.M{
			"$regex": primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"},
			"$nin":   exclude,
		},
	}
	cur, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetMany returns the user documents for the given usernames, sorted by
// username. Unknown names are simply absent from the result.
func (s *UserStore) GetMany(ctx context.Context, usernames []string) ([]models.User, error) {
	if len(usernames) == 0 {
		return []models.User{}, nil
	}
	cur, err := s.col.Find(ctx,
		bson.M{"username": bson.M{"$in": usernames}},
		options.Find().SetSort(bson.D{{Key: "username", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AddFriend appends friend to username's friend set. $addToSet makes the
// operation idempotent at the store; adding twice leaves one entry. The
// relation is one-directional.
func (s *UserStore) AddFriend(ctx context.Context, username, friend string) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$addToSet": bson.M{"friends": friend}},
	)
	if err != nil {
		return fmt.Errorf("add friend: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAvatarPath updates the stored avatar reference; nil clears it back
// to the default avatar.
func (s *UserStore) SetAvatarPath(ctx context.Context, username string, path *string) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{"avatarPath": path}},
	)
	if err != nil {
		return fmt.Errorf("set avatar path: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AvatarPaths resolves the current avatar path for each of the given
// usernames. Users without an avatar are omitted from the map.
func (s *UserStore) AvatarPaths(ctx context.Context, usernames []string) (map[string]string, error) {
	if len(usernames) == 0 {
		return map[string]string{}, nil
	}
	cur, err := s.col.Find(ctx,
		bson.M{"username": bson.M{"$in": usernames}},
		options.Find().SetProjection(bson.M{"username": 1, "avatarPath": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("avatar paths: %w", err)
	}
	defer cur.Close(ctx)

	paths := make(map[string]string, len(usernames))
	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		if u.AvatarPath != nil {
			paths[u.Username] = *u.AvatarPath
		}
	}
	return paths, cur.Err()
}
