package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adwski/signaling-relay/backend/notify"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultPingTimeout = 3 * time.Second
)

var (
	ErrConnect   = errors.New("unable to connect to redis")
	ErrSubscribe = errors.New("unable to subscribe")
)

type (
	Config struct {
		Logger   *zerolog.Logger
		Notifier notify.Notifier
		Addr     string
		Password string
		DB       int
		Channel  string
	}

	// Subscriber receives new-message notifications from a Redis pub/sub channel.
	Subscriber struct {
		svc     notify.Notifier
		rdb     *redis.Client
		channel string
		logger  zerolog.Logger
	}
)

func NewSubscriber(cfg Config) *Subscriber {
	return &Subscriber{
		svc: cfg.Notifier,
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		channel: cfg.Channel,
		logger: cfg.Logger.With().
			Str("component", "redis-subscriber").
			Str("channel", cfg.Channel).
			Logger(),
	}
}

func (s *Subscriber) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		if err := s.rdb.Close(); err != nil {
			s.logger.Error().Err(err).Msg("failed to close redis client")
		}
		s.logger.Debug().Msg("subscriber stopped")
		wg.Done()
	}()

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	err := s.rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		errc <- errors.Join(ErrConnect, err)
		return
	}

	ps := s.rdb.Subscribe(ctx, s.channel)
	defer func() {
		_ = ps.Close()
	}()
	// wait for subscription confirmation so errors surface at startup
	if _, err = ps.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			errc <- errors.Join(ErrSubscribe, err)
		}
		return
	}
	s.logger.Info().Msg("subscriber started")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			notify.Deliver(ctx, s.svc, []byte(msg.Payload), &s.logger)
		}
	}
}
