package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support_chat_server/internal/config"
	"support_chat_server/internal/dao/docstore"
	"support_chat_server/internal/dao/mysql"
	myredis "support_chat_server/internal/dao/redis"
	"support_chat_server/internal/dao/sqlite"
	"support_chat_server/internal/gateway/websocket"
	"support_chat_server/internal/handler"
	"support_chat_server/internal/https_server"
	"support_chat_server/internal/infrastructure/logger"
	"support_chat_server/internal/infrastructure/mq"
	"support_chat_server/internal/infrastructure/notify"
	"support_chat_server/internal/infrastructure/scheduler"
	"support_chat_server/internal/infrastructure/telegram"
	"support_chat_server/internal/infrastructure/worker"
	"support_chat_server/internal/model"
	"support_chat_server/internal/service"
	"support_chat_server/internal/service/relay"
	"support_chat_server/pkg/util/jwt"
	"support_chat_server/pkg/util/snowflake"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		zap.L().Error("server exited", zap.Error(err))
		_ = zap.L().Sync()
		os.Exit(1)
	}
}

func run() error {
	// 1. config
	conf, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// 2. logger
	if err := logger.Init(&conf.LogConfig, conf.MainConfig.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer zap.L().Sync()

	snowflake.Init(conf.MachineID)
	jwt.Init(conf.JWTConfig.Secret, conf.JWTConfig.AccessTokenExpiry)
	if err := handler.InitTrans("en"); err != nil {
		return fmt.Errorf("init validator translations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. document store
	store, maintainer, err := openStore(ctx, conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}()
	zap.L().Info("document store ready", zap.String("backend", conf.Backend), zap.String("changeFeed", conf.ChangeFeed))

	// 4. admin notifications
	pool := worker.NewPool("notify", conf.Workers, conf.BufferSize)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool.Stop(stopCtx)
	}()
	notifier, err := notify.NewNotifier(&conf.TelegramConfig)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}
	alerter := notify.NewDispatcher(notifier, pool)

	// 5. telegram relay and services
	inbound := &inboundRelay{}
	var (
		client relay.TelegramClient
		tg     *telegram.Client
	)
	if conf.TelegramConfig.Enabled {
		tg, err = telegram.NewClient(&conf.TelegramConfig, inbound)
		if err != nil {
			return fmt.Errorf("init telegram client: %w", err)
		}
		client = tg
		zap.L().Info("telegram relay enabled", zap.String("mode", conf.TelegramConfig.Mode))
	}
	svc := service.NewServices(store, client, alerter)
	inbound.relay = svc.Relay

	// 6. http
	var webhook http.Handler
	if tg != nil && conf.TelegramConfig.Mode == "webhook" {
		webhook = tg.WebhookHandler()
	}
	gateway := websocket.NewGateway(svc.Widget, svc.Inbox, conf.AllowOrigins)
	engine := https_server.Init(conf, handler.NewHandlers(svc, gateway, webhook, conf.WebhookSecret))
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 7. maintenance
	sched, err := scheduler.New()
	if err != nil {
		return err
	}
	if err := sched.AddMaintenance(conf.MaintenanceCron, maintainer, store.Subscriptions); err != nil {
		return err
	}

	// 8. run until a signal or the first failure
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return store.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	if tg != nil {
		g.Go(func() error {
			if conf.TelegramConfig.Mode == "webhook" {
				return tg.ServeWebhook(gctx)
			}
			return tg.Poll(gctx)
		})
	}

	err = g.Wait()
	zap.L().Info("server stopped")
	return err
}

// openStore builds the adapter for the configured backend. The maintainer is nil
// for the cloud backend.
func openStore(ctx context.Context, conf *config.Config) (*docstore.Adapter, scheduler.Maintainer, error) {
	if conf.Backend == "local" {
		backend, err := sqlite.Open(conf.SqliteConfig.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return docstore.New(backend), backend, nil
	}

	backend, err := mysql.Open(&conf.MysqlConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("open mysql: %w", err)
	}
	instanceID := uuid.NewString()
	var feed docstore.Feed
	switch conf.ChangeFeed {
	case "kafka":
		feed = mq.NewKafkaFeed(&conf.KafkaConfig, instanceID)
	default:
		rdb, err := myredis.NewClient(ctx, &conf.RedisConfig)
		if err != nil {
			_ = backend.Close()
			return nil, nil, err
		}
		feed = myredis.NewFeed(rdb, conf.Channel)
	}
	return docstore.New(backend, docstore.WithFeed(feed), docstore.WithOrigin(instanceID)), nil, nil
}

// inboundRelay hands Telegram updates to the relay, which is built after the client.
type inboundRelay struct {
	relay *relay.Relay
}

func (i *inboundRelay) HandleInbound(ctx context.Context, in relay.Inbound) (*model.Message, error) {
	return i.relay.HandleInbound(ctx, in)
}
