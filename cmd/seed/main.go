// Command seed drops the application database and repopulates it with
// demo accounts and posts so a fresh instance renders a lively feed.
// Every generated account logs in with the password "password".
package main

import (
	"context"
	"flag"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/desvo/klab-feed/internal/config"
	"github.com/desvo/klab-feed/internal/logger"
	"github.com/desvo/klab-feed/internal/models"
	"github.com/desvo/klab-feed/internal/store"
)

const demoPassword = "password"

func main() {
	userCount := flag.Int("users", 8, "number of demo accounts to create")
	postCount := flag.Int("posts", 20, "number of demo posts to create")
	dropOnly := flag.Bool("drop-only", false, "drop the database and exit")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, "")
	defer log.Sync()
	ctx := context.Background()

	client, err := store.ConnectMongo(ctx, cfg.MongoURI, log)
	if err != nil {
		log.Fatal("mongo connect", zap.Error(err))
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.MongoDB)
	if err := db.Drop(ctx); err != nil {
		log.Fatal("drop database", zap.Error(err))
	}
	log.Info("database dropped", zap.String("db", cfg.MongoDB))
	if *dropOnly {
		return
	}

	if err := store.EnsureIndexes(ctx, db); err != nil {
		log.Fatal("ensure indexes", zap.Error(err))
	}
	users := store.NewUserStore(db)
	feed := store.NewFeedStore(db)

	hashed, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("hash demo password", zap.Error(err))
	}

	usernames := make([]string, 0, *userCount)
	for len(usernames) < *userCount {
		username := gofakeit.Username()
		err := users.Create(ctx, &models.User{
			Username: username,
			Password: string(hashed),
			Name:     gofakeit.Name(),
			Friends:  []string{},
		})
		if err == store.ErrUsernameTaken {
			continue
		}
		if err != nil {
			log.Fatal("create user", zap.Error(err))
		}
		usernames = append(usernames, username)
	}
	log.Info("users created", zap.Int("count", len(usernames)))

	// A loose random friend graph; relations stay one-directional.
	for _, u := range usernames {
		for i := 0; i < rand.Intn(3); i++ {
			friend := usernames[rand.Intn(len(usernames))]
			if friend == u {
				continue
			}
			if err := users.AddFriend(ctx, u, friend); err != nil {
				log.Fatal("add friend", zap.Error(err))
			}
		}
	}

	privacies := []string{models.PrivacyPublic, models.PrivacyPublic, models.PrivacyFriends, models.PrivacyPrivate}
	for i := 0; i < *postCount; i++ {
		author := usernames[rand.Intn(len(usernames))]
		post := &models.Post{
			UUID:    uuid.NewString(),
			Content: gofakeit.Sentence(8 + rand.Intn(12)),
			Author:  author,
			Privacy: privacies[rand.Intn(len(privacies))],
		}
		if err := feed.Insert(ctx, post); err != nil {
			log.Fatal("insert post", zap.Error(err))
		}

		for j := 0; j < rand.Intn(4); j++ {
			commenter := usernames[rand.Intn(len(usernames))]
			err := feed.AddComment(ctx, post.UUID, models.Comment{
				Content:   gofakeit.Sentence(4 + rand.Intn(8)),
				Author:    commenter,
				CreatedAt: time.Now(),
			})
			if err != nil {
				log.Fatal("add comment", zap.Error(err))
			}
		}
		for j := 0; j < rand.Intn(len(usernames)); j++ {
			liker := usernames[rand.Intn(len(usernames))]
			if _, _, err := feed.ToggleLike(ctx, post.UUID, liker); err != nil {
				log.Fatal("toggle like", zap.Error(err))
			}
		}
	}
	log.Info("posts created", zap.Int("count", *postCount))
}
