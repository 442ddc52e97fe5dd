// Package sink delivers finished analytics reports as JSON documents to a
// directory, an S3 bucket or a Kafka topic.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nixlim/pantrycost/internal/analytics"
	"github.com/nixlim/pantrycost/internal/config"
)

// ErrNotConfigured is returned by New when no sink kind is set.
var ErrNotConfigured = errors.New("no report sink configured")

// Sink stores one report per Write call, keyed by the report ID.
type Sink interface {
	Write(ctx context.Context, r *analytics.Report) error
	Close() error
}

// New builds the sink selected by cfg.Kind.
func New(ctx context.Context, cfg config.SinkConfig, logger *zap.Logger) (Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Kind {
	case "":
		return nil, ErrNotConfigured
	case config.SinkFile:
		return NewFileSink(cfg.Path)
	case config.SinkS3:
		return NewS3Sink(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Prefix)
	case config.SinkKafka:
		return NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}

// Encode renders a report as indented JSON with a trailing newline.
func Encode(r *analytics.Report) ([]byte, error) {
	if r == nil || r.ID == "" {
		return nil, errors.New("report has no id")
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report %s: %w", r.ID, err)
	}
	return append(data, '\n'), nil
}

func objectName(r *analytics.Report) string {
	return r.ID + ".json"
}
