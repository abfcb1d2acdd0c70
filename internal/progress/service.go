package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-realtime-drops/internal/drops"
	kafkax "github.com/ariefcatur/go-realtime-drops/internal/kafka"
	"github.com/ariefcatur/go-realtime-drops/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Service applies ProgressUpdated events to the shared interest ledger.
type Service struct {
	Catalog     *drops.Catalog
	Ledger      drops.Ledger
	Redis       *redis.Client
	ServiceName string
	Log         *zap.Logger
}

// HandleProgressUpdated is installed as the consumer handler.
func (s *Service) HandleProgressUpdated(ctx context.Context, m kafkago.Message) error {
	log := s.logger()

	var env drops.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// Not an envelope: nothing a retry would fix.
		log.Warn("skip malformed event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != drops.EventProgressUpdated {
		return nil
	}

	p, err := kafkax.UnwrapPayload[drops.ProgressUpdatedPayload](env.Payload)
	if err != nil || p.DropID == "" {
		log.Warn("skip malformed payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	seen, err := redisx.MarkSeen(ctx, s.Redis, s.ServiceName, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if seen {
		log.Debug("duplicate event", zap.String("event_id", env.EventID))
		return nil
	}

	ps, err := s.apply(ctx, p)
	if err != nil {
		if ferr := redisx.ForgetSeen(ctx, s.Redis, s.ServiceName, env.EventID); ferr != nil {
			log.Error("forget dedup mark", zap.String("event_id", env.EventID), zap.Error(ferr))
		}
		if errors.Is(err, drops.ErrDropNotFound) {
			log.Warn("progress for unknown drop", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		return err
	}

	log.Info("progress applied",
		zap.String("event_id", env.EventID),
		zap.String("drop_id", ps.DropID),
		zap.Float64("progress", ps.Progress),
		zap.String("status", string(ps.Status)))
	return nil
}

func (s *Service) apply(ctx context.Context, p drops.ProgressUpdatedPayload) (drops.ProgressState, error) {
	if s.Catalog != nil {
		if _, err := s.Catalog.Drop(ctx, p.DropID); err != nil {
			return drops.ProgressState{}, err
		}
	}
	return s.Ledger.ApplyProgress(ctx, p.DropID, p.Progress)
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
