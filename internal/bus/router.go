package bus

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/antech-v6-engine/internal/domain"
)

// Request is the inbound command envelope. Data carries the integration
// scope plus an operation-specific payload.
type Request struct {
	ID      string             `json:"id"`
	ReplyTo string             `json:"replyTo,omitempty"`
	Data    domain.MessageData `json:"data"`
}

// Handler executes one provider operation. The returned value, when non-nil,
// is published to the request's replyTo subject.
type Handler func(ctx context.Context, req *Request) (interface{}, error)

// Router dispatches inbound commands to provider operations. Commands
// arrive on channels named {provider}.{resource}.{operation}.
type Router struct {
	bus      *RedisBus
	provider string
	handlers map[string]Handler
	log      *logrus.Entry
}

// NewRouter creates a Router for the given provider name.
func NewRouter(bus *RedisBus, provider string, log *logrus.Entry) *Router {
	return &Router{
		bus:      bus,
		provider: provider,
		handlers: make(map[string]Handler),
		log:      log,
	}
}

// Handle registers the handler for one (resource, operation) pair.
func (r *Router) Handle(resource, operation string, h Handler) {
	r.handlers[resource+"."+operation] = h
}

// Run subscribes to the provider's command channels and dispatches until the
// context is cancelled. Each command runs in its own goroutine; handler
// failures are wrapped in a ProviderError and returned to the caller when a
// reply subject is set.
func (r *Router) Run(ctx context.Context) error {
	pubsub := r.bus.PSubscribe(ctx, r.provider+".*.*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			go r.dispatch(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

func (r *Router) dispatch(ctx context.Context, channel string, payload []byte) {
	parts := strings.SplitN(channel, ".", 3)
	if len(parts) != 3 {
		r.log.WithField("channel", channel).Warn("dropping command with malformed channel")
		return
	}
	resource, operation := parts[1], parts[2]

	handler, ok := r.handlers[resource+"."+operation]
	if !ok {
		r.log.WithFields(logrus.Fields{"resource": resource, "operation": operation}).Warn("no handler for command")
		return
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		r.log.WithError(err).WithField("channel", channel).Warn("dropping undecodable command")
		return
	}

	log := r.log.WithFields(logrus.Fields{
		"resource":       resource,
		"operation":      operation,
		"integration_id": req.Data.IntegrationID,
		"request_id":     req.ID,
	})
	log.Debug("handling command")

	result, err := handler(ctx, &req)
	if err != nil {
		log.WithError(err).Error("command failed")
		if req.ReplyTo != "" {
			r.reply(ctx, req.ReplyTo, domain.WrapProviderError(r.provider, err))
		}
		return
	}
	if req.ReplyTo != "" && result != nil {
		r.reply(ctx, req.ReplyTo, result)
	}
}

func (r *Router) reply(ctx context.Context, subject string, data interface{}) {
	if err := r.bus.Publish(ctx, subject, data); err != nil {
		r.log.WithError(err).WithField("subject", subject).Error("failed to publish reply")
	}
}
