package usecase

import (
	"context"

	"LiqPulse/internal/domain/models"
	drepo "LiqPulse/internal/domain/repository"
	mid "LiqPulse/internal/middleware"
	"LiqPulse/pkg/logger"
)

// LiquidationCollector consumes the venue liquidation stream and feeds the
// ingest pipeline. Reconnects are handled here; a reconnect means a gap in
// the feed that the core makes no attempt to reconcile.
type LiquidationCollector struct {
	stream drepo.LiquidationStream
	pipe   *mid.IngestPipeline
	log    *logger.Logger
}

// NewLiquidationCollector creates a new collector.
func NewLiquidationCollector(stream drepo.LiquidationStream, pipe *mid.IngestPipeline, log *logger.Logger) *LiquidationCollector {
	return &LiquidationCollector{stream: stream, pipe: pipe, log: log}
}

// IsConnected reports the stream connection status.
func (c *LiquidationCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes, and launches the consume loop.
func (c *LiquidationCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	evCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, evCh, errCh)
	return nil
}

func (c *LiquidationCollector) consume(ctx context.Context, evCh <-chan *models.TradeEvent, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok || err != nil {
				if err != nil {
					c.log.Warn("stream error, reconnecting", logger.Error(err))
				}
				for {
					if ctx.Err() != nil {
						return
					}
					if rerr := c.stream.Reconnect(ctx); rerr == nil {
						break
					} else {
						c.log.Error("reconnect failed", logger.Error(rerr))
					}
				}
				// A fresh stream after a gap: windows continue from
				// whatever arrives next.
				evCh, errCh = c.stream.Read(ctx)
			}
		case e := <-evCh:
			if e == nil {
				continue
			}
			c.pipe.Offer(ctx, e)
		}
	}
}

// Shutdown stops the ingest pipeline and closes the stream.
func (c *LiquidationCollector) Shutdown(_ context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}
