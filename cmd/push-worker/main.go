package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	config "github.com/NordCoder/Puntos/internal/config/push-worker"
	"github.com/NordCoder/Puntos/internal/domain/notification"
	"github.com/NordCoder/Puntos/internal/obs"
	"github.com/NordCoder/Puntos/internal/obs/retry"
	"github.com/NordCoder/Puntos/internal/repository/fcm"
	"github.com/NordCoder/Puntos/internal/repository/kafka"
	pg "github.com/NordCoder/Puntos/internal/repository/postgres"
	pushworker "github.com/NordCoder/Puntos/internal/services/push-worker"
	"github.com/NordCoder/Puntos/internal/services/push-worker/repo"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func wiring(db *pg.DB, push notification.PushSender, cons *kafka.Consumer, l *zap.Logger) *pushworker.Controller {
	uc := &pushworker.Handler{
		Push:  push,
		Inbox: repo.Inbox{R: pg.NewNotificationRepo(db)},
		Clock: systemClock{},
		Retry: retry.PushPolicy(l, fcm.Retryable),
		Log:   l,
	}
	return &pushworker.Controller{Log: l, Sub: cons, UC: uc}
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "../config/push-worker.yaml"
}

func main() {
	_ = godotenv.Load()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	l.Info("starting push-worker",
		zap.Any("kafka_in", cfg.In),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
		zap.Bool("fcm_enabled", cfg.FCM.Enabled),
	)

	// otel
	otelCloser, err := obs.SetupOTel(rootCtx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.New(rootCtx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	// fcm; without it every reminder lands in the inbox only
	var push notification.PushSender
	client, res, err := fcm.Open(rootCtx, cfg.FCM)
	switch {
	case err != nil:
		l.Error("fcm init failed, inbox only", zap.Error(err))
	case res == fcm.InitOK:
		push = client
	}
	l.Info("fcm", zap.String("init", res.String()))

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, db.Ping, l)

	// kafka
	ccfg := cfg.In.AsConsumerConfig()
	ccfg.Logger = l
	ccfg.HandlerRetry = retry.ConsumePolicy(l)
	cons := kafka.BootstrapConsumer(rootCtx, ccfg, cfg.In.Partitions, l)
	defer func() { _ = cons.Close() }()
	l.Info("kafka consumer initialized",
		zap.Strings("brokers", cfg.In.Brokers),
		zap.String("group_id", cfg.In.GroupID),
		zap.String("topic", cfg.In.Topic),
	)

	// start
	ctrl := wiring(db, push, cons, l)
	errCh := make(chan error, 1)
	go func() {
		l.Info("controller starting")
		errCh <- ctrl.Run(rootCtx)
	}()

	// main loop
	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case runErr := <-errCh:
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			l.Error("controller error", zap.Error(runErr))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
