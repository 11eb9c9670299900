package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	config "github.com/NordCoder/Puntos/internal/config/reminder"
	"github.com/NordCoder/Puntos/internal/domain/notification"
	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
	"github.com/NordCoder/Puntos/internal/obs/retry"
	"github.com/NordCoder/Puntos/internal/outbox"
	"github.com/NordCoder/Puntos/internal/repository/fcm"
	kafkax "github.com/NordCoder/Puntos/internal/repository/kafka"
	"github.com/NordCoder/Puntos/internal/repository/loyaltyapi"
	pg "github.com/NordCoder/Puntos/internal/repository/postgres"
	apisvc "github.com/NordCoder/Puntos/internal/services/api"
	"github.com/NordCoder/Puntos/internal/services/reminder"
)

type app struct {
	log      *zap.Logger
	cfg      *config.Config
	st       *storage
	Manager  *reminder.Manager
	API      *apisvc.Server
	producer *kafkax.Producer
	outbox   *outbox.Runner
}

// probeCapabilities is evaluated once at boot. Notifications are always
// presentable through the live session or the inbox.
func probeCapabilities(cfg *config.Config, push fcm.InitResult) domain.Capabilities {
	return domain.Capabilities{
		SupportsNotifications:    true,
		SupportsBackgroundWorker: cfg.Reminder.BackgroundWorker,
		SupportsPushChannel:      push == fcm.InitOK,
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, st *storage) (*app, error) {
	schedCfg, err := cfg.Reminder.SchedulerConfig()
	if err != nil {
		return nil, err
	}

	push, initRes, err := fcm.Open(ctx, cfg.FCM)
	if err != nil {
		logger.Error("fcm init failed, push disabled", zap.Error(err))
	}
	caps := probeCapabilities(cfg, initRes)
	logger.Info("capabilities probed",
		zap.String("fcm", initRes.String()),
		zap.Bool("push_channel", caps.SupportsPushChannel),
		zap.Bool("background_worker", caps.SupportsBackgroundWorker),
		zap.String("fire_at", schedCfg.String()),
	)

	a := &app{log: logger, cfg: cfg, st: st}
	hub := apisvc.NewHub(logger, cfg.Server.AllowedOrigins)

	var (
		channel reminder.Channel = reminder.ForegroundOnly{}
		sender  notification.PushSender
	)
	if caps.SupportsPushChannel {
		channel = reminder.NewPushChannel(push, st.KV, reminder.LogTokenSink{Log: logger}, logger)
		sender = push
	}

	worker := reminder.WorkerStrategy{Clock: reminder.SystemClock{}}
	if caps.SupportsBackgroundWorker {
		outboxRepo := pg.NewOutboxRepo(st.DB)
		worker.Outbox = outboxRepo
		a.producer = kafkax.BootstrapProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions, logger)
		events := kafkax.NewReminderEventsKafka(a.producer)
		a.outbox = outbox.NewOutboxRunner(logger, outboxRepo,
			outbox.MakeGlobalOutboxHandler(events, retry.OutboxPolicy(logger)), cfg.Outbox)
	}

	fg := reminder.ForegroundStrategy{Sessions: hub}
	deliverer := reminder.NewDefaultDeliverer(logger, caps, reminder.PushStrategy{Sender: sender}, fg, worker)

	tmpl := reminder.Deps{
		Config:     schedCfg,
		Clock:      reminder.SystemClock{},
		NewTimer:   reminder.AfterFunc,
		Store:      st.KV,
		Channel:    channel,
		Deliverer:  deliverer,
		Foreground: fg,
		Caps:       caps,
		Link:       cfg.App.PointsLink(),
		Log:        logger,
	}
	a.Manager = reminder.NewManager(st.KV, reminder.NewFactory(tmpl, hub, cfg.Reminder.PromptTimeout), logger)

	upstream, err := loyaltyapi.New(cfg.Upstream, logger)
	if err != nil {
		return nil, fmt.Errorf("upstream client: %w", err)
	}

	a.API = apisvc.NewServer(apisvc.Deps{
		Log:        logger,
		Manager:    a.Manager,
		Inbox:      pg.NewNotificationRepo(st.DB),
		Directory:  upstream,
		Ledger:     upstream,
		Hub:        hub,
		PointsLink: cfg.App.PointsLink(),
	})
	return a, nil
}

// Start restores persisted schedulers and launches the outbox relay. The
// returned channel closes once background work has stopped.
func (a *app) Start(ctx context.Context) <-chan struct{} {
	rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if _, err := a.Manager.Restore(rctx); err != nil {
		a.log.Error("restore schedulers", zap.Error(err))
	}
	cancel()

	done := make(chan struct{})
	var wg sync.WaitGroup
	if a.outbox != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.outbox.Run(ctx)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (a *app) Close() {
	if a.producer != nil {
		_ = a.producer.Close()
	}
}
