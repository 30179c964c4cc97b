package notify

import (
	"context"

	"github.com/pkg/errors"

	"github.com/unclebandit/fieldsales-recruit/internal/logging"
	"github.com/unclebandit/fieldsales-recruit/internal/model"
)

// Sender hands a rendered notification to a gateway.
type Sender interface {
	Deliver(ctx context.Context, channel model.Channel, address, subject, body string) error
}

// LogSender writes notifications to the log instead of a gateway.
type LogSender struct{}

func (LogSender) Deliver(ctx context.Context, channel model.Channel, address, subject, body string) error {
	if channel == model.ChannelEmail {
		address = logging.RedactEmail(address)
	}
	logging.Ctx(ctx).Info().
		Str("channel", string(channel)).
		Str("address", address).
		Str("subject", subject).
		Int("bytes", len(body)).
		Msg("notification delivered")
	return nil
}

// Direct renders and delivers in the caller's goroutine.
type Direct struct {
	Renderer *Renderer
	Sender   Sender
}

func (d *Direct) Send(ctx context.Context, msg Message) error {
	if !msg.Channel.Valid() {
		return errors.Errorf("invalid channel %q", msg.Channel)
	}
	subject, body, err := d.Renderer.Render(msg)
	if err != nil {
		return err
	}
	if err := d.Sender.Deliver(ctx, msg.Channel, msg.Address, subject, body); err != nil {
		return errors.Wrapf(err, "deliver %s", msg.TemplateKey)
	}
	return nil
}
