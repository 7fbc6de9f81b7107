package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	natsNotify "github.com/adwski/signaling-relay/backend/notify/nats"
	redisNotify "github.com/adwski/signaling-relay/backend/notify/redis"
	httpServer "github.com/adwski/signaling-relay/backend/server/http"
	websocketServer "github.com/adwski/signaling-relay/backend/server/websocket"
	"github.com/adwski/signaling-relay/backend/service"
	store "github.com/adwski/signaling-relay/backend/storage/memory"
	sw "github.com/adwski/signaling-relay/backend/switch"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

type runner interface {
	Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error)
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", ":8080", "internal api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", ":8888", "websocket signaling listen address")
		logLevel      = fs.StringP("log-level", "l", "debug", "log level")
		sendQueueSize = fs.Int("send-queue-size", 256, "per connection outbound queue size")
		notifySecret  = fs.String("notify-secret", "", "HMAC secret for internal api bearer tokens, empty disables auth")
		natsURL       = fs.String("nats-url", "", "nats server url for new message notifications, empty disables")
		natsSubject   = fs.String("nats-subject", "relay.conversations.messages", "nats subject for new message notifications")
		natsQueue     = fs.String("nats-queue", "", "nats queue group")
		redisAddr     = fs.String("redis-addr", "", "redis address for new message notifications, empty disables")
		redisPassword = fs.String("redis-password", "", "redis password")
		redisDB       = fs.Int("redis-db", 0, "redis database")
		redisChannel  = fs.String("redis-channel", "relay:conversations:messages", "redis pub/sub channel for new message notifications")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	relay := service.NewRelay(service.Config{
		RoomStore: store.NewMemStore(),
		Switch:    sw.NewSwitch(&logger),
		Logger:    &logger,
	})

	runners := []runner{
		httpServer.NewServer(httpServer.Config{
			Logger:     &logger,
			Notifier:   relay,
			Secret:     *notifySecret,
			ListenAddr: *apiListenAddr,
		}),
		websocketServer.NewServer(websocketServer.Config{
			Logger:           &logger,
			SignalingService: relay,
			ListenAddr:       *wsListenAddr,
			SendQueueSize:    *sendQueueSize,
		}),
	}
	if *natsURL != "" {
		runners = append(runners, natsNotify.NewSubscriber(natsNotify.Config{
			Logger:   &logger,
			Notifier: relay,
			URL:      *natsURL,
			Subject:  *natsSubject,
			Queue:    *natsQueue,
		}))
	}
	if *redisAddr != "" {
		runners = append(runners, redisNotify.NewSubscriber(redisNotify.Config{
			Logger:   &logger,
			Notifier: relay,
			Addr:     *redisAddr,
			Password: *redisPassword,
			DB:       *redisDB,
			Channel:  *redisChannel,
		}))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, len(runners))
	)
	wg.Add(len(runners))
	for _, r := range runners {
		go r.Run(ctx, wg, errc)
	}

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
