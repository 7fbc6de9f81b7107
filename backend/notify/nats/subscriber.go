package nats

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adwski/signaling-relay/backend/notify"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	defaultReconnectWait = 500 * time.Millisecond
	defaultTimeout       = 3 * time.Second
	defaultClientName    = "signaling-relay"
)

var (
	ErrConnect   = errors.New("unable to connect to nats")
	ErrSubscribe = errors.New("unable to subscribe")
)

type (
	Config struct {
		Logger   *zerolog.Logger
		Notifier notify.Notifier
		URL      string
		Subject  string
		// Queue makes several relays share one subject. Empty means every relay gets every message.
		Queue string
	}

	// Subscriber receives new-message notifications from a NATS subject.
	Subscriber struct {
		svc     notify.Notifier
		url     string
		subject string
		queue   string
		logger  zerolog.Logger
	}
)

func NewSubscriber(cfg Config) *Subscriber {
	return &Subscriber{
		svc:     cfg.Notifier,
		url:     cfg.URL,
		subject: cfg.Subject,
		queue:   cfg.Queue,
		logger: cfg.Logger.With().
			Str("component", "nats-subscriber").
			Str("subject", cfg.Subject).
			Logger(),
	}
}

func (s *Subscriber) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		s.logger.Debug().Msg("subscriber stopped")
		wg.Done()
	}()

	nc, err := nats.Connect(s.url,
		nats.Name(defaultClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(defaultReconnectWait),
		nats.Timeout(defaultTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.logger.Warn().Err(err).Msg("disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected")
		}),
	)
	if err != nil {
		errc <- errors.Join(ErrConnect, err)
		return
	}

	handler := func(m *nats.Msg) {
		notify.Deliver(ctx, s.svc, m.Data, &s.logger)
	}
	if s.queue == "" {
		_, err = nc.Subscribe(s.subject, handler)
	} else {
		_, err = nc.QueueSubscribe(s.subject, s.queue, handler)
	}
	if err != nil {
		nc.Close()
		errc <- errors.Join(ErrSubscribe, err)
		return
	}
	s.logger.Info().Str("url", nc.ConnectedUrl()).Msg("subscriber started")

	<-ctx.Done()
	if err = nc.Drain(); err != nil {
		s.logger.Error().Err(err).Msg("failed to drain connection")
		nc.Close()
	}
}
