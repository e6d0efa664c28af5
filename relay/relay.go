package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"csms/internal"
	"csms/internal/config"
	"csms/utility"
)

const featureName = "CommandRelay"

// allowedCommands are the only backend-initiated actions a relayed command
// may trigger on a station.
var allowedCommands = []string{
	"RemoteStartTransaction",
	"RemoteStopTransaction",
	"UnlockConnector",
	"Reset",
	"GetConfiguration",
	"ChangeConfiguration",
}

// Sender forwards a command frame to a connected station.
type Sender interface {
	SendCommand(stationId string, action string, payload interface{}) (string, error)
}

// CommandMessage is the wire format published by the operator services.
type CommandMessage struct {
	StationId string          `json:"chargerId"`
	Command   string          `json:"command"`
	Payload   json.RawMessage `json:"payload"`
}

// Relay subscribes to the command channel and forwards allow-listed commands
// to live station connections. Commands for offline stations are dropped,
// there is no retry or dead-letter path.
type Relay struct {
	client  *redis.Client
	channel string
	sender  Sender
	logger  internal.LogHandler
}

func NewRelay(conf *config.Config, sender Sender, logger internal.LogHandler) (*Relay, error) {
	if !conf.Redis.Enabled {
		return nil, nil
	}
	options, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("redis url parsing failed: %s", err)
	}
	return &Relay{
		client:  redis.NewClient(options),
		channel: conf.Redis.CommandChannel,
		sender:  sender,
		logger:  logger,
	}, nil
}

// Listen blocks consuming the command channel until the context is done.
func (r *Relay) Listen(ctx context.Context) {
	subscription := r.client.Subscribe(ctx, r.channel)
	defer func() {
		_ = subscription.Close()
	}()
	r.logger.Debug(fmt.Sprintf("subscribed to command channel %s", r.channel))
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-subscription.Channel():
			if !ok {
				return
			}
			r.handleMessage(message.Payload)
		}
	}
}

func (r *Relay) handleMessage(payload string) {
	var command CommandMessage
	if err := json.Unmarshal([]byte(payload), &command); err != nil {
		r.logger.Error("decoding command message", err)
		return
	}
	if !utility.Contains(allowedCommands, command.Command) {
		r.logger.Warn(fmt.Sprintf("command %s is not allowed, dropping", command.Command))
		return
	}
	requestId, err := r.sender.SendCommand(command.StationId, command.Command, command.Payload)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("command %s for station %s dropped; %s", command.Command, command.StationId, err))
		return
	}
	r.logger.FeatureEvent(featureName, command.StationId, fmt.Sprintf("sent %s with request id %s", command.Command, requestId))
}
