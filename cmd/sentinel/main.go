package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/vibeguard/sentinel/alerting"
	"github.com/vibeguard/sentinel/attestation"
	"github.com/vibeguard/sentinel/config"
	"github.com/vibeguard/sentinel/db"
	"github.com/vibeguard/sentinel/ethclient"
	"github.com/vibeguard/sentinel/logging"
	"github.com/vibeguard/sentinel/monitor"
	"github.com/vibeguard/sentinel/notifier"
	"github.com/vibeguard/sentinel/presenter"
	"github.com/vibeguard/sentinel/pricing"
	"github.com/vibeguard/sentinel/repository"
	"github.com/vibeguard/sentinel/repository/postgres"
	"github.com/vibeguard/sentinel/repository/redisrepo"
	"github.com/vibeguard/sentinel/risk"
	"github.com/vibeguard/sentinel/state"
	"github.com/vibeguard/sentinel/verification"
)

var configPath = flag.String("config", "config.yml", "path to the yaml config")

func main() {
	flag.Parse()
	_ = godotenv.Load()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(logrus.Level(cfg.LogLevel))

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

	st := state.New(logger, repo, cfg.Alerts.MinLimitUSD, cfg.Wallets.MaxPerUser)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err = st.Load(ctx); err != nil {
		logger.WithError(err).Fatal("can't load persisted state")
	}

	pool, err := ethclient.NewPool(ctx,
		cfg.Chain.RPC.URLs, cfg.Chain.RPC.FallbackURLs,
		time.Duration(cfg.Chain.RPC.Timeout), cfg.Chain.ChainID, cfg.Chain.RPC.MaxInflight)
	if err != nil {
		logger.WithError(err).Fatal("can't dial rpc endpoints")
	}

	if cfg.Metrics != nil {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			if err2 := http.ListenAndServe(cfg.Metrics.Host, nil); err2 != nil {
				logger.WithError(err2).Fatal("can't start listener for prometheus metrics")
			}
		}()
	}

	var scheduler alerting.AttestationScheduler
	var writer *attestation.Writer
	if cfg.Attestation != nil && cfg.Attestation.Enabled {
		writer, err = attestation.NewWriter(logger.WithField("service", "attestation"), pool, cfg.Attestation)
		if err != nil {
			logger.WithError(err).Fatal("can't initialize attestation writer")
		}
		scheduler = writer
	}

	tg := notifier.NewTelegram(logger.WithField("service", "notifier"), cfg.Telegram.Token)
	oracle := pricing.NewOracle(logger.WithField("service", "pricing"), cfg.Pricing)
	scorer := risk.NewScorer(logger.WithField("service", "risk"), cfg.Risk, cfg.Chain.ChainID)
	dispatcher := alerting.NewDispatcher(
		logger.WithField("service", "dispatcher"),
		tg, st, cfg.Alerts.Owners, cfg.Alerts.DeliveryConcurrency, scheduler)

	classifier := monitor.NewClassifier(logger.WithField("service", "classifier"), pool, st, oracle, scorer, dispatcher)
	scanner := monitor.NewScanner(logger.WithField("service", "scanner"), pool, st, cfg.Chain, cfg.Queues)

	verifier := verification.New(logger.WithField("service", "verification"), st, time.Duration(cfg.Wallets.VerificationTTL))
	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger.WithField("service", "presenter"), st, verifier, scanner)
		go func() {
			if err2 := pr.Serve(cfg.Presenter.Host); err2 != nil {
				logger.WithError(err2).Fatal("can't serve presenter")
			}
		}()
	}

	// Workers run on their own context so they can drain the queues after the
	// scanner context is cancelled.
	drainCtx, drainCancel := context.WithCancel(context.Background())
	defer drainCancel()

	workers := monitor.NewWorkerPool(logger.WithField("service", "workers"), classifier)
	workers.StartNative(drainCtx, cfg.Workers.Native, scanner.TxQueue())
	workers.StartToken(drainCtx, cfg.Workers.Token, scanner.LogQueue())

	if writer != nil {
		go writer.Start(drainCtx)
	}

	scannerDone := make(chan struct{})
	go func() {
		scanner.Start(ctx)
		close(scannerDone)
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn("caught termination signal, gracefully terminating")

	cancel()
	<-scannerDone
	scanner.CloseQueues()

	if !workers.WaitTimeout(time.Duration(cfg.Shutdown.DrainTimeout)) {
		logger.Warn("drain timeout passed, abandoning in-flight items")
	}
	drainCancel()

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if err = st.Save(saveCtx); err != nil {
		logger.WithError(err).Error("can't save final state")
	}
	logger.Info("shutdown complete")
}
