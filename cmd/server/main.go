package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"formroom/internal/admin"
	"formroom/internal/auth"
	"formroom/internal/notification"
	"formroom/internal/notification/channels/chat"
	"formroom/internal/notification/channels/email"
	"formroom/internal/notification/deadletter"
	notifmetrics "formroom/internal/notification/metrics"
	"formroom/internal/platform/config"
	"formroom/internal/platform/httpserver"
	"formroom/internal/platform/logger"
	platformredis "formroom/internal/platform/redis"
	"formroom/internal/realtime"
	rtmetrics "formroom/internal/realtime/metrics"
	"formroom/internal/realtime/presence"
	"formroom/internal/realtime/ratelimit"
	"formroom/internal/realtime/registry"
	"formroom/internal/realtime/room"
	"formroom/internal/realtime/router"
	"formroom/internal/scaling"
	"formroom/internal/transport/ws"
	"formroom/pkg/backoff"
)

// main wires the realtime core, the notification pipeline, and the HTTP
// surface, then runs everything under one cancellable lifecycle.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Cross-instance bridge. No Redis means single-instance operation.
	var pubsub scaling.PubSub
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed, degrading to single instance", "error", err)
	} else if redisClient != nil {
		defer redisClient.Close()
		pubsub = scaling.NewRedisPubSub(redisClient.Client, cfg.Redis.Channel, log)
	}

	rtm := rtmetrics.New()
	rooms := room.NewManager()
	pres := presence.NewTracker(presence.WithTypingTTL(cfg.Realtime.TypingTTL))
	limiter := ratelimit.NewLimiter(cfg.RateLimit.Budget, cfg.RateLimit.Window,
		ratelimit.WithViolationThreshold(cfg.RateLimit.ViolationThreshold))
	verifier := auth.NewVerifier(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	reg := registry.New(verifier, rooms, pres, limiter,
		registry.WithLogger(log),
		registry.WithMetrics(rtm),
		registry.WithHeartbeatTimeout(cfg.Realtime.HeartbeatTimeout))

	routerOpts := []router.Option{
		router.WithLogger(log),
		router.WithMetrics(rtm),
	}
	if pubsub != nil {
		routerOpts = append(routerOpts, router.WithPubSub(pubsub, cfg.NodeID))
	}
	rt, err := router.New(reg, rooms, pres, limiter, routerOpts...)
	if err != nil {
		log.Error("router construction failed", "error", err)
		os.Exit(1)
	}
	if err := rt.Start(ctx); err != nil {
		log.Error("cluster subscription failed", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	dispatcher := buildDispatcher(cfg, log, rt)
	service := realtime.NewService(reg, rooms, pres, rt, dispatcher)

	mux := chi.NewRouter()
	mux.Use(chimiddleware.RequestID)
	mux.Use(chimiddleware.Recoverer)
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", ws.NewHandler(reg, rt,
		ws.WithLogger(log),
		ws.WithSendQueueSize(cfg.Realtime.SendQueueSize)))
	admin.New(service, verifier, log).Register(mux)

	srv := httpserver.New(cfg.Addr, mux)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := reg.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		reg.CloseAll(registry.ReasonServerShutdown)
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("formroom started", "addr", cfg.Addr, "node_id", cfg.NodeID,
		"clustered", pubsub != nil)

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("formroom stopped")
}

// buildDispatcher assembles the notification pipeline from configuration:
// channel adapters, retry policy, and the dead-letter sink.
func buildDispatcher(cfg config.Config, log *slog.Logger, rt *router.Router) *notification.Dispatcher {
	senders := make(map[notification.Channel]notification.Sender)
	if cfg.Chat.BotToken != "" {
		senders[notification.ChannelChat] = chat.NewAdapter(chat.Config{
			BotToken: cfg.Chat.BotToken,
			Channel:  cfg.Chat.Channel,
		})
	}
	if cfg.Email.APIURL != "" {
		mailer, err := email.NewAdapter(email.Config{
			APIURL:   cfg.Email.APIURL,
			APIToken: cfg.Email.APIToken,
			From:     cfg.Email.From,
		})
		if err != nil {
			log.Error("email adapter disabled", "error", err)
		} else {
			senders[notification.ChannelEmail] = mailer
		}
	}

	opts := []notification.Option{
		notification.WithLogger(log),
		notification.WithMetrics(notifmetrics.New()),
		notification.WithMaxAttempts(cfg.Notification.MaxAttempts),
		notification.WithBackoff(backoff.Policy{
			Base:   cfg.Notification.BackoffBase,
			Max:    cfg.Notification.BackoffMax,
			Factor: 2,
			Jitter: 0.2,
		}),
		notification.WithWorkers(cfg.Notification.Workers),
		notification.WithQueueSize(cfg.Notification.QueueSize),
		notification.WithSendTimeout(cfg.Notification.SendTimeout),
		notification.WithEnabledChannels(parseChannels(cfg.Notification.EnabledChannels)),
	}
	if len(cfg.Notification.DeadLetterBrokers) > 0 {
		sink, err := deadletter.NewKafka(cfg.Notification.DeadLetterBrokers, cfg.Notification.DeadLetterTopic, log)
		if err != nil {
			log.Error("kafka dead-letter sink unavailable, using in-memory sink", "error", err)
			opts = append(opts, notification.WithDeadLetter(deadletter.NewMemory()))
		} else {
			opts = append(opts, notification.WithDeadLetter(sink))
		}
	} else {
		opts = append(opts, notification.WithDeadLetter(deadletter.NewMemory()))
	}

	return notification.New(rt, senders, opts...)
}

func parseChannels(names []string) []notification.Channel {
	out := make([]notification.Channel, 0, len(names))
	for _, name := range names {
		out = append(out, notification.Channel(name))
	}
	return out
}
