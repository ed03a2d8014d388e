package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linlinbupt123-crypto/energy_share_service/config"
	"github.com/linlinbupt123-crypto/energy_share_service/db"
)

func main() {
	path := flag.String("config", "", "path to config yaml")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	if cfg.Mongo.URI == "" {
		logrus.Fatal("mongo.uri is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := db.NewMongoRepo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		logrus.WithError(err).Fatal("MongoDB connect error")
	}
	defer func() {
		if err := repo.Close(ctx); err != nil {
			logrus.WithError(err).Warn("MongoDB disconnect error")
		}
	}()

	if err := repo.EnsureIndexes(ctx); err != nil {
		logrus.WithError(err).Fatal("init indexes failed")
	}
	logrus.WithField("database", cfg.Mongo.Database).Info("all indexes initialized")
}
