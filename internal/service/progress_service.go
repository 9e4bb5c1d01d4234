package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/observability"
)

const progressBufferSize = 16

// ProgressService streams grading lifecycle events to subscribers and
// relays them across instances through Redis and NATS.
type ProgressService interface {
	ProgressPublisher
	Subscribe(sheetID uint) (<-chan dto.ProgressEvent, func())
	Start(ctx context.Context)
}

type progressService struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	broker      *progressBroker
	nodeID      string
	now         func() time.Time
}

type progressEnvelope struct {
	Source string            `json:"source"`
	Event  dto.ProgressEvent `json:"event"`
}

type progressBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.ProgressEvent]struct{}
}

// NewProgressService constructs the progress event service.
func NewProgressService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) ProgressService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":grading:events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".grading.events"
	}

	return &progressService{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "progress_service").Logger(),
		broker: &progressBroker{
			subscribers: make(map[uint]map[chan dto.ProgressEvent]struct{}),
		},
		nodeID: uuid.NewString(),
		now:    time.Now,
	}
}

func (s *progressService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// PublishProgress broadcasts the event locally and relays it to peer
// instances. Publishing never fails the caller; relay errors are
// logged and dropped.
func (s *progressService) PublishProgress(ctx context.Context, event dto.ProgressEvent) {
	if event.SentAt.IsZero() {
		event.SentAt = s.now().UTC()
	}

	observability.GradingEvents().WithLabelValues(event.Type).Inc()
	s.broker.broadcast(event.SheetID, event)

	if err := s.relay(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to relay progress event")
	}
}

// Subscribe registers a listener for one sheet's events. The cleanup
// function must be called when the subscriber disconnects.
func (s *progressService) Subscribe(sheetID uint) (<-chan dto.ProgressEvent, func()) {
	channel := make(chan dto.ProgressEvent, progressBufferSize)

	s.broker.subscribe(sheetID, channel)
	observability.ProgressClients().Inc()

	cleanup := func() {
		s.broker.unsubscribe(sheetID, channel)
		observability.ProgressClients().Dec()
	}

	return channel, cleanup
}

func (s *progressService) relay(ctx context.Context, event dto.ProgressEvent) error {
	envelope := progressEnvelope{
		Source: s.nodeID,
		Event:  event,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *progressService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("progress redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

func (s *progressService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to grading events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain grading events subscription")
		}
	}()
}

func (s *progressService) handleEnvelope(payload []byte) {
	var envelope progressEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid progress event payload")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	s.broker.broadcast(envelope.Event.SheetID, envelope.Event)
}

func (b *progressBroker) subscribe(sheetID uint, ch chan dto.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sheetID]; !exists {
		b.subscribers[sheetID] = make(map[chan dto.ProgressEvent]struct{})
	}
	b.subscribers[sheetID][ch] = struct{}{}
}

func (b *progressBroker) unsubscribe(sheetID uint, ch chan dto.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[sheetID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, sheetID)
		}
	}
}

func (b *progressBroker) broadcast(sheetID uint, event dto.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := b.subscribers[sheetID]
	for ch := range subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
