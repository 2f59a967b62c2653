package webhook

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/nao1215/crmgate/pkg/event"
)

// Sink は受信したイベントの記録先。
type Sink interface {
	Record(ctx context.Context, r *event.Record) error
}

// LogSink はイベントをログに出力するSink。
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink はloggerに出力するLogSinkを生成する。
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record はイベントを1件のinfoログとして出力する。
func (s *LogSink) Record(_ context.Context, r *event.Record) error {
	s.logger.Info("Webhookイベントを受信",
		zap.String("record_id", r.ID),
		zap.Time("received_at", r.ReceivedAt),
		zap.Object("event", r.Event),
	)
	return nil
}

// MultiSink は複数のSinkに同じイベントを渡す。
type MultiSink []Sink

// Record はすべてのSinkにイベントを渡す。
// 途中のSinkが失敗しても残りのSinkには渡し、エラーはまとめて返す。
func (m MultiSink) Record(ctx context.Context, r *event.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
