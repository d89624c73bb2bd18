package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/metrics"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	payloadField       = "payload"
	defaultBlock       = 2 * time.Second
	busyGroupErrPrefix = "BUSYGROUP"
	pendingReadStartID = "0"
	newMessagesStartID = ">"
)

// Stream owns the redis client shared by producers and the consumer-group source.
type Stream struct {
	client *redis.Client
}

func NewStream(url string) (*Stream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Stream{client: client}, nil
}

func (s *Stream) Close() error {
	return s.client.Close()
}

func (s *Stream) Client() *redis.Client {
	return s.client
}

// PublishBatch appends batch to stream as one JSON entry and returns its id.
func (s *Stream) PublishBatch(ctx context.Context, stream string, batch event.RawBatch) (string, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("encode batch %s: %w", batch.ID, err)
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

type SourceConfig struct {
	Processor string
	Stream    string
	Group     string
	Consumer  string

	// StartID is where a newly created group starts reading: "$", "0" or an entry id.
	StartID string

	Block     time.Duration
	ReadRPS   float64
	ReadBurst int
}

// Source reads raw batches from a consumer group. Entries left unacknowledged
// by a previous run of the same consumer are redelivered before new ones.
type Source struct {
	client  *redis.Client
	cfg     SourceConfig
	limiter *rate.Limiter
	logger  *slog.Logger

	mu             sync.Mutex
	pendingCursor  string
	pendingDrained bool
}

func NewSource(client *redis.Client, cfg SourceConfig, logger *slog.Logger) *Source {
	if cfg.Block <= 0 {
		cfg.Block = defaultBlock
	}
	if cfg.StartID == "" {
		cfg.StartID = "0"
	}
	limit := rate.Inf
	if cfg.ReadRPS > 0 {
		limit = rate.Limit(cfg.ReadRPS)
	}
	burst := max(cfg.ReadBurst, 1)

	return &Source{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("component", "redis_source", "stream", cfg.Stream, "group", cfg.Group),

		pendingCursor: pendingReadStartID,
	}
}

// Rewind makes the next read start over from this consumer's oldest
// unacknowledged entry.
func (s *Source) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCursor = pendingReadStartID
	s.pendingDrained = false
}

// EnsureGroup creates the consumer group (and the stream) if it does not exist.
func (s *Source) EnsureGroup(ctx context.Context) error {
	if err := validateStartID(s.cfg.StartID); err != nil {
		return fmt.Errorf("group start id: %w", err)
	}
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, s.cfg.StartID).Err()
	if err != nil && !strings.HasPrefix(err.Error(), busyGroupErrPrefix) {
		return fmt.Errorf("create group %s on %s: %w", s.cfg.Group, s.cfg.Stream, err)
	}
	return nil
}

// Next blocks until a batch is available or ctx is done.
func (s *Source) Next(ctx context.Context) (event.RawBatch, error) {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return event.RawBatch{}, err
		}

		s.mu.Lock()
		readingPending := !s.pendingDrained
		startID := newMessagesStartID
		if readingPending {
			startID = s.pendingCursor
		}
		s.mu.Unlock()

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			Streams:  []string{s.cfg.Stream, startID},
			Count:    1,
			Block:    s.cfg.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			s.markDrained(readingPending)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return event.RawBatch{}, ctx.Err()
			}
			metrics.SourceReadErrors.WithLabelValues(s.cfg.Processor).Inc()
			return event.RawBatch{}, fmt.Errorf("xreadgroup %s: %w", s.cfg.Stream, err)
		}

		msg, ok := firstMessage(streams)
		if !ok {
			s.markDrained(readingPending)
			continue
		}
		if readingPending {
			s.mu.Lock()
			s.pendingCursor = msg.ID
			s.mu.Unlock()
		}

		batch, err := decodeMessage(msg)
		if err != nil {
			// Poison entries are acknowledged so they do not block the group.
			metrics.SourceReadErrors.WithLabelValues(s.cfg.Processor).Inc()
			s.logger.Error("dropping undecodable stream entry", "id", msg.ID, "error", err)
			if ackErr := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, msg.ID).Err(); ackErr != nil {
				return event.RawBatch{}, fmt.Errorf("xack %s: %w", msg.ID, ackErr)
			}
			continue
		}

		metrics.SourceBatchesRead.WithLabelValues(s.cfg.Processor).Inc()
		return batch, nil
	}
}

// Ack acknowledges the stream entry a batch was read from. token is the
// batch's AckToken.
func (s *Source) Ack(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, token).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", token, err)
	}
	metrics.SourceAcks.WithLabelValues(s.cfg.Processor).Inc()
	return nil
}

func (s *Source) markDrained(readingPending bool) {
	if !readingPending {
		return
	}
	s.mu.Lock()
	s.pendingDrained = true
	s.mu.Unlock()
}

func firstMessage(streams []redis.XStream) (redis.XMessage, bool) {
	for _, st := range streams {
		if len(st.Messages) > 0 {
			return st.Messages[0], true
		}
	}
	return redis.XMessage{}, false
}

func decodeMessage(msg redis.XMessage) (event.RawBatch, error) {
	raw, ok := msg.Values[payloadField]
	if !ok {
		return event.RawBatch{}, fmt.Errorf("entry %s has no %q field", msg.ID, payloadField)
	}
	payload, err := streamPayload(raw)
	if err != nil {
		return event.RawBatch{}, err
	}

	var batch event.RawBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return event.RawBatch{}, fmt.Errorf("decode batch %s: %w", msg.ID, err)
	}
	if batch.EndVersion < batch.StartVersion {
		return event.RawBatch{}, fmt.Errorf("batch %s: end version %d before start version %d", msg.ID, batch.EndVersion, batch.StartVersion)
	}
	if batch.ID == "" {
		batch.ID = msg.ID
	}
	batch.AckToken = msg.ID
	return batch, nil
}

func streamPayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case fmt.Stringer:
		return []byte(p.String()), nil
	default:
		return nil, fmt.Errorf("stream payload type %T not supported", v)
	}
}

// validateStartID accepts "$", a bare millisecond offset or a full "<ms>-<seq>" id.
func validateStartID(id string) error {
	if id == "$" {
		return nil
	}
	ms, seq, compound := strings.Cut(id, "-")
	if _, err := strconv.ParseUint(ms, 10, 64); err != nil {
		return fmt.Errorf("invalid stream id %q", id)
	}
	if compound {
		if _, err := strconv.ParseUint(seq, 10, 64); err != nil {
			return fmt.Errorf("invalid stream id %q", id)
		}
	}
	return nil
}
