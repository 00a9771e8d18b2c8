package audit

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes events to a zap logger. It is used when no database is configured.
type LogSink struct{ log *zap.Logger }

// NewLogSink returns a sink writing to log at Info level.
func NewLogSink(log *zap.Logger) *LogSink { return &LogSink{log: log.Named("audit.sink")} }

// Append logs e. It never fails.
func (s *LogSink) Append(_ context.Context, e Event) error {
	s.log.Info("audit",
		zap.String("event_id", e.ID.String()),
		zap.String("case_id", e.CaseID.String()),
		zap.Int64("case_ver", e.CaseVer),
		zap.String("actor_id", e.ActorID),
		zap.String("action", string(e.Action)),
		zap.String("ip", e.IP),
		zap.Any("metadata", e.Metadata),
		zap.Time("ts", e.Timestamp),
	)
	return nil
}

// MultiSink fans an event out to several sinks and returns the first error.
type MultiSink []Sink

// Append delivers e to every sink even if one of them fails.
func (m MultiSink) Append(ctx context.Context, e Event) error {
	var first error
	for _, s := range m {
		if err := s.Append(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
