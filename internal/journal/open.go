package journal

import (
	"context"

	"github.com/rs/zerolog"

	"nexus/internal/config"
)

// Open builds a Writer from the enabled sinks. A sink that cannot be reached
// is logged and skipped so the demo still runs.
func Open(ctx context.Context, cfg config.JournalConfig, logger zerolog.Logger) *Writer {
	var sinks []Sink
	if cfg.MinIO.Enabled {
		sink, err := NewMinIOSink(ctx, cfg.MinIO)
		if err != nil {
			logger.Warn().Err(err).Msg("minio journal disabled")
		} else {
			sinks = append(sinks, sink)
			logger.Info().Str("bucket", cfg.MinIO.Bucket).Msg("minio journal enabled")
		}
	}
	if cfg.AMQP.Enabled {
		sink, err := NewAMQPSink(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err == nil {
			err = sink.Ping(ctx)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("amqp journal disabled")
		} else {
			sinks = append(sinks, sink)
			logger.Info().Str("exchange", cfg.AMQP.Exchange).Msg("amqp journal enabled")
		}
	}
	return NewWriter(logger, cfg.Buffer, sinks...)
}
