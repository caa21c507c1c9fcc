package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/pkg/geo"
)

// Command names.
const (
	CommandRefreshNow     = "refresh_now"
	CommandChangeLocation = "change_location"
)

// Command errors.
var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownCommand   = errors.New("unknown command")
)

// Commander is the target of remote commands.
type Commander interface {
	RefreshNow()
	ChangeLocation(ctx context.Context, c geo.Coordinate) error
}

// CommandMessage is the JSON payload of a command.
type CommandMessage struct {
	Command string   `json:"command"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// PubSubHandler receives commands from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	target           Commander
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Target           Commander
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Commands are small and order-insensitive; keep few outstanding.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		target:           cfg.Target,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := Dispatch(ctx, h.target, msg.Data)
	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, ErrUnknownCommand):
		// Ack unknown messages to prevent redelivery
		logger.Warn().Err(err).Msg("ignoring command")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("command failed")
		msg.Nack()
	}
}

// Dispatch decodes a command payload and applies it to target.
func Dispatch(ctx context.Context, target Commander, data []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	switch cmd.Command {
	case CommandRefreshNow:
		target.RefreshNow()
		return nil
	case CommandChangeLocation:
		if cmd.Lat == nil || cmd.Lon == nil {
			return fmt.Errorf("%w: change_location requires lat and lon", ErrMalformedCommand)
		}
		c := geo.Coordinate{Lat: *cmd.Lat, Lon: *cmd.Lon}
		if !c.Valid() {
			return fmt.Errorf("%w: coordinate out of range %s", ErrMalformedCommand, c)
		}
		if err := target.ChangeLocation(ctx, c); err != nil {
			return fmt.Errorf("changing location: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}
