package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"communityboard/internal/config"
	"communityboard/internal/database"
	"communityboard/internal/modules/penalty"
	"communityboard/internal/repository"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	schedule := flag.String("schedule", cfg.SweepSchedule, "cron spec; empty runs one pass and exits")
	flag.Parse()

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}

	engine := penalty.NewEngine(
		repository.NewPenaltyRepository(db, cfg.StoreTimeout),
		repository.NewAbuseLogRepository(db, cfg.StoreTimeout),
		penalty.Options{
			Threshold: cfg.PenaltyThreshold,
			Duration:  cfg.SuspensionDuration,
			Logger:    log,
		},
	)

	sweep := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := engine.ReleaseLapsed(ctx)
		if err != nil {
			log.WithError(err).Error("limits sweep failed")
			return
		}
		log.WithField("released", n).Info("limits sweep completed")
	}

	if *schedule == "" {
		sweep()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, sweep); err != nil {
		log.WithError(err).WithField("schedule", *schedule).Fatal("invalid sweep schedule")
	}
	c.Start()
	log.WithField("schedule", *schedule).Info("limits sweep scheduled")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	<-c.Stop().Done()
	log.Info("limits sweep stopped")
}
