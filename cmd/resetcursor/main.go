package main

import (
	"context"
	"flag"

	"github.com/joho/godotenv"

	"github.com/vibeguard/sentinel/config"
	"github.com/vibeguard/sentinel/db"
	"github.com/vibeguard/sentinel/logging"
	"github.com/vibeguard/sentinel/repository"
	"github.com/vibeguard/sentinel/repository/postgres"
	"github.com/vibeguard/sentinel/repository/redisrepo"
	"github.com/vibeguard/sentinel/state"
)

var (
	configPath = flag.String("config", "config.yml", "path to the yaml config")
	block      = flag.Uint64("block", 0, "block number to reset the cursor to, 0 snaps to near head on next start")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}

	var repo repository.StateRepo
	if cfg.DBConfig != nil {
		dbConn, err2 := db.NewDB(cfg.DBConfig)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't connect to database")
		}
		defer dbConn.Close()
		repo, err = postgres.NewStateRepo(dbConn)
		if err != nil {
			logger.WithError(err).Fatal("can't initialize state repo")
		}
	} else {
		redisRepo, err2 := redisrepo.NewStateRepo(cfg.Redis)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't connect to redis")
		}
		defer redisRepo.Close()
		repo = redisRepo
	}

	ctx := context.Background()
	st := state.New(logger, repo, cfg.Alerts.MinLimitUSD, cfg.Wallets.MaxPerUser)
	if err = st.Load(ctx); err != nil {
		logger.WithError(err).Fatal("can't load persisted state")
	}

	st.SetCursor(*block)
	if err = st.Save(ctx); err != nil {
		logger.WithError(err).Fatal("can't save state")
	}
	logger.WithField("block", *block).Info("cursor reset")
}
