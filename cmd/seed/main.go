package main

import (
	"context"
	"errors"
	"fmt"

	"communityboard/internal/config"
	"communityboard/internal/database"
	"communityboard/internal/domain"
	"communityboard/internal/repository"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const demoPassword = "board123"

func main() {
	_ = godotenv.Load()
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("DB connection failed")
	}
	log.Info("Running AutoMigrate...")
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("AutoMigrate failed")
	}

	users := repository.NewUserRepository(db, cfg.StoreTimeout)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		log.WithError(err).Fatal("hash password")
	}

	for _, id := range []string{"alice", "bob", "carol"} {
		if _, err := users.GetByID(ctx, id); err == nil {
			log.WithField("id", id).Info("user exists, skipping")
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			log.WithError(err).Fatal("lookup failed")
		}

		u := &domain.User{
			ID:           id,
			Username:     id,
			Email:        fmt.Sprintf("%s@board.local", id),
			PasswordHash: string(hash),
		}
		if err := users.Create(ctx, u); err != nil {
			log.WithError(err).WithField("id", id).Fatal("create user failed")
		}
		log.WithField("id", id).Infof("user created: %s / %s", id, demoPassword)
	}
	log.Info("seed completed")
}
