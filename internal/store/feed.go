package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/desvo/klab-feed/internal/models"
)

const feedCollection = "feed"

// FeedStore handles post CRUD against the feed collection.
type FeedStore struct {
	col *mongo.Collection
}

func NewFeedStore(db *mongo.Database) *FeedStore {
	return &FeedStore{col: db.Collection(feedCollection)}
}

func (s *FeedStore) Insert(ctx context.Context, p *models.Post) error {
	p.CreatedAt = time.Now()
	if p.Comments == nil {
		p.Comments = []models.Comment{}
	}
	if p.Likes == nil {
		p.Likes = []string{}
	}
	if _, err := s.col.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// List returns every post, newest first. No privacy filtering and no
// pagination; the whole collection comes back on every call.
func (s *FeedStore) List(ctx context.Context) ([]models.Post, error) {
	return s.find(ctx, bson.M{})
}

// ListByAuthor returns one author's posts, newest first.
func (s *FeedStore) ListByAuthor(ctx context.Context, author string) ([]models.Post, error) {
	return s.find(ctx, bson.M{"author": author})
}

func (s *FeedStore) find(ctx context.Context, filter bson.M) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	defer cur.Close(ctx)

	var posts []models.Post
	if err := cur.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *FeedStore) Get(ctx context.Context, uuid string) (*models.Post, error) {
	var p models.Post
	err := s.col.FindOne(ctx, bson.M{"uuid": uuid}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find post: %w", err)
	}
	return &p, nil
}

// AddComment appends a comment to the post with the given uuid.
func (s *FeedStore) AddComment(ctx context.Context, uuid string, c models.Comment) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"uuid": uuid},
		bson.M{"$push": bson.M{"comments": c}},
	)
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleLike flips username's membership in the post's like set and
// returns the resulting count and state. Both directions are single
// conditional updates ($pull guarded by membership, $addToSet guarded by
// non-membership), so a double-click racing itself resolves at the store
// rather than through a read-modify-write.
func (s *FeedStore) ToggleLike(ctx context.Context, uuid, username string) (likes int, liked bool, err error) {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"uuid": uuid, "likes": username},
		bson.M{"$pull": bson.M{"likes": username}},
	)
	if err != nil {
		return 0, false, fmt.Errorf("unlike: %w", err)
	}

	if res.MatchedCount == 0 {
		res, err = s.col.UpdateOne(ctx,
			bson.M{"uuid": uuid, "likes": bson.M{"$ne": username}},
			bson.M{"$addToSet": bson.M{"likes": username}},
		)
		if err != nil {
			return 0, false, fmt.Errorf("like: %w", err)
		}
		liked = true
		if res.MatchedCount == 0 {
			// Either the post does not exist or a concurrent toggle by
			// the same user got there first; the current document decides.
			p, err := s.Get(ctx, uuid)
			if err != nil {
				return 0, false, err
			}
			return len(p.Likes), p.LikedBy(username), nil
		}
	}

	p, err := s.Get(ctx, uuid)
	if err != nil {
		return 0, false, err
	}
	return len(p.Likes), liked, nil
}
