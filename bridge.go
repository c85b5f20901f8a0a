package handover

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/handover/types"
)

// OriginHeader is the NATS header carrying a message's origin.
const OriginHeader = "Origin"

// HandleMessage acts on a cross-context message from a variant.
//
// Messages whose origin is not listed in AllowedOrigins are rejected before
// anything else happens. A missing origin or "*" is rejected unless listed
// verbatim. Recognized messages:
//   - build-ready from the full variant: forwards the handover state and
//     marks the full variant ready
//   - game-over from the lite variant: same as Complete
//   - level-reached from the lite variant: same as LevelReached
//
// Anything else is ignored.
//
// Returns:
//   - error: ErrOriginRejected, or ErrNotStarted before Start
func (c *Controller) HandleMessage(origin string, msg Message) error {
	if !c.originAllowed(origin) {
		c.logger.Warn("rejected message", "origin", origin, "type", string(msg.Type))
		return fmt.Errorf("%w: %q", ErrOriginRejected, origin)
	}

	ctx, ok := c.running()
	if !ok {
		return ErrNotStarted
	}

	c.logger.Debug("message received", "origin", origin, "type", string(msg.Type), "build", string(msg.BuildID))

	switch {
	case msg.Type == types.MessageBuildReady && msg.BuildID == VariantFull:
		c.mu.Lock()
		c.fullWarm = true
		c.mu.Unlock()

		c.presenter.SendHandoverState(ctx, c.handoverState("full-build-ready"))
		c.markFullReady(ctx, "full-build-ready")
	case msg.Type == types.MessageGameOver && msg.BuildID == VariantLite:
		c.Complete()
	case msg.Type == types.MessageLevelReached && msg.BuildID == VariantLite:
		c.LevelReached(msg.Level)
	default:
		c.logger.Debug("ignored message", "type", string(msg.Type), "build", string(msg.BuildID))
	}

	return nil
}

func (c *Controller) originAllowed(origin string) bool {
	return slices.Contains(c.cfg.AllowedOrigins, origin)
}

// SubscribeMessages feeds JSON messages published on subject into HandleMessage.
//
// The origin is read from the OriginHeader header. Undecodable or rejected
// messages are logged and dropped.
//
// Parameters:
//   - nc: Connected NATS client
//   - subject: Subject to subscribe to, wildcards allowed
//
// Returns:
//   - *nats.Subscription: Caller owns the subscription and must Unsubscribe it
//   - error: Subscription error
func (c *Controller) SubscribeMessages(nc *nats.Conn, subject string) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			c.logger.Warn("failed to decode message", "subject", m.Subject, "error", err)
			return
		}

		if err := c.HandleMessage(m.Header.Get(OriginHeader), msg); err != nil {
			c.logger.Warn("failed to handle message", "subject", m.Subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	return sub, nil
}

// PublishMessage publishes msg on subject with the given origin header.
//
// Variants running as separate processes use it to talk to the controller.
func PublishMessage(nc *nats.Conn, subject string, origin string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	m := nats.NewMsg(subject)
	m.Data = data
	if origin != "" {
		m.Header.Set(OriginHeader, origin)
	}

	if err := nc.PublishMsg(m); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}
