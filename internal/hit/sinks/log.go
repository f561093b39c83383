package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/maxscroll/internal/hit"
)

// LogSink emits structured logs for debugging hit streams.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each hit in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []hit.Hit) error {
	for _, h := range batch {
		fields := []zap.Field{
			zap.String("hit_id", h.ID),
			zap.String("client_id", h.ClientID),
			zap.String("tracking_id", h.TrackingID),
			zap.String("type", h.Type),
			zap.String("page", h.Fields.String(hit.FieldPage)),
			zap.Time("ts", h.TS),
		}
		if h.Type == hit.TypeEvent {
			fields = append(fields,
				zap.String("category", h.Category()),
				zap.String("action", h.Action()),
				zap.Any("label", h.Fields[hit.FieldEventLabel]),
				zap.Any("value", h.Fields[hit.FieldEventValue]),
			)
		}
		s.logger.Info("hit", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
