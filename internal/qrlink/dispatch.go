package qrlink

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Opener hands a link to the platform (browser, OS handler).
type Opener interface {
	Open(ctx context.Context, link string) error
}

type SessionHandler func(ctx context.Context, payload SessionPayload) error

// Dispatcher routes scan results: sessions stay in the app, links leave it
// through the Opener.
type Dispatcher struct {
	opener    Opener
	onSession SessionHandler
	logger    *zap.Logger
}

func NewDispatcher(opener Opener, onSession SessionHandler, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{opener: opener, onSession: onSession, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, res Result) error {
	switch res.Kind {
	case KindSession:
		if res.Session == nil {
			return ErrMalformedSession
		}
		d.logger.Info("session scanned",
			zap.String("orderNumber", res.Session.OrderNumber),
			zap.Int("table", res.Session.Table))
		return d.onSession(ctx, *res.Session)
	case KindLink:
		d.logger.Info("opening scanned link", zap.String("link", res.Link))
		if err := d.opener.Open(ctx, res.Link); err != nil {
			return fmt.Errorf("opening link: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("qrlink: unknown result kind %d", res.Kind)
	}
}
