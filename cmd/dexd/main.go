package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/glsig/dexchange/params"
	"github.com/glsig/dexchange/pkg/api"
	"github.com/glsig/dexchange/pkg/exchange"
	"github.com/glsig/dexchange/pkg/feed"
	"github.com/glsig/dexchange/pkg/storage"
	"github.com/glsig/dexchange/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "data/dexd.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- Storage ----
	store, err := storage.NewPebbleStore(cfg.Storage.DataDir + "/exchange")
	if err != nil {
		sugar.Fatalw("storage_init_failed", "err", err)
	}
	defer store.Close()

	// ---- Custody dispatch ----
	// Outbound transfers go to the custody bridge. Until the bridge is
	// wired, dispatches are recorded in the structured log so operators
	// can replay them.
	transfer := exchange.TransferFunc(func(t exchange.Transfer) {
		sugar.Infow("outbound_transfer",
			"to", t.To.Hex(), "quantity", t.Quantity.String(), "memo", t.Memo)
	})

	// ---- Engine ----
	x, err := exchange.New(exchange.Options{
		Store:      store,
		Transfer:   transfer,
		Clock:      util.RealClock{},
		Logger:     sugar,
		GLAccount:  cfg.Fees.GlAccount,
		SIGAccount: cfg.Fees.SigAccount,
	})
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}

	// ---- API + trade fan-out ----
	server := api.NewServer(x, store, cfg.API, sugar)

	var producer *feed.Producer
	if len(cfg.Feed.KafkaBrokers) > 0 {
		producer = feed.NewProducer(cfg.Feed.KafkaBrokers, cfg.Feed.KafkaTopic, sugar)
		defer producer.Close()
		sugar.Infow("trade_feed_enabled", "brokers", cfg.Feed.KafkaBrokers, "topic", cfg.Feed.KafkaTopic)
	}

	x.OnTrade = func(t exchange.Trade) {
		server.PublishTrade(t)
		if producer != nil {
			producer.PublishTrade(t)
		}
	}

	go func() {
		if err := server.Start(cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	sugar.Info("shutting down")
}
