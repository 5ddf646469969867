package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/jonnyarndt/klimate/internal/config"
	"github.com/jonnyarndt/klimate/internal/hvac"
	"github.com/jonnyarndt/klimate/internal/protocol/climate"
)

// Bridge republishes controller events to MQTT and accepts setpoint
// commands from a command topic. It is an optional external consumer of
// the controller's event surface; core semantics do not depend on it.
type Bridge struct {
	cfg    config.BridgeConfig
	ctrl   *hvac.Controller
	client mqtt.Client
	log    zerolog.Logger
}

func New(cfg config.BridgeConfig, ctrl *hvac.Controller, log zerolog.Logger) *Bridge {
	return &Bridge{
		cfg:  cfg,
		ctrl: ctrl,
		log:  log.With().Str("component", "mqtt-bridge").Logger(),
	}
}

// Start connects to the broker and wires event republishing. A broker
// that is down at start is not fatal: paho retries in the background.
func (b *Bridge) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID(b.cfg.ClientID)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.log.Info().Str("broker", b.cfg.Broker).Msg("connected to broker")
		topic := b.cfg.TopicPrefix + "/zone/+/setpoint/set"
		if token := c.Subscribe(topic, 0, b.handleSetCommand); token.Wait() && token.Error() != nil {
			b.log.Error().Err(token.Error()).Str("topic", topic).Msg("subscribe failed")
		}
	})
	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		b.log.Warn().Err(token.Error()).Msg("broker unreachable, retrying in background")
	}

	events := b.ctrl.Events()
	events.OnStatusUpdated(func(snap hvac.StatusSnapshot) {
		b.publishJSON(b.cfg.TopicPrefix+"/status", snap)
	})
	events.OnSetpointChanged(func(zone climate.ZoneID, tempC float64) {
		topic := fmt.Sprintf("%s/zone/%d/setpoint", b.cfg.TopicPrefix, zone)
		b.publish(topic, strconv.FormatFloat(tempC, 'f', 1, 64))
	})
	events.OnConnectionStateChanged(func(state hvac.ConnState) {
		b.publish(b.cfg.TopicPrefix+"/link", state.String())
	})
	events.OnProtocolError(func(kind string, detail error) {
		b.publishJSON(b.cfg.TopicPrefix+"/errors", map[string]string{
			"kind": kind, "detail": detail.Error(),
		})
	})
	return nil
}

func (b *Bridge) Stop() {
	if b.client != nil {
		b.client.Disconnect(250)
	}
}

func (b *Bridge) handleSetCommand(_ mqtt.Client, msg mqtt.Message) {
	zone, err := zoneFromTopic(msg.Topic(), b.cfg.TopicPrefix)
	if err != nil {
		b.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("ignoring command")
		return
	}
	tempC, err := strconv.ParseFloat(strings.TrimSpace(string(msg.Payload())), 64)
	if err != nil {
		b.log.Warn().Err(err).Str("payload", string(msg.Payload())).Msg("ignoring command")
		return
	}
	if err := b.ctrl.SetZoneTemperature(zone, tempC); err != nil {
		b.log.Warn().Err(err).Uint8("zone", uint8(zone)).Msg("setpoint command rejected")
	}
}

func (b *Bridge) publish(topic, payload string) {
	if b.client == nil {
		return
	}
	b.client.Publish(topic, 0, true, payload)
}

func (b *Bridge) publishJSON(topic string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		b.log.Error().Err(err).Str("topic", topic).Msg("marshal failed")
		return
	}
	b.publish(topic, string(body))
}

// zoneFromTopic extracts the zone id from "<prefix>/zone/<id>/setpoint/set".
func zoneFromTopic(topic, prefix string) (climate.ZoneID, error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/zone/")
	if !ok {
		return 0, fmt.Errorf("topic %q outside prefix %q", topic, prefix)
	}
	idStr, ok := strings.CutSuffix(rest, "/setpoint/set")
	if !ok {
		return 0, fmt.Errorf("topic %q is not a setpoint command", topic)
	}
	zone, err := strconv.Atoi(idStr)
	if err != nil || zone < 1 || zone > 255 {
		return 0, fmt.Errorf("bad zone id %q in topic", idStr)
	}
	return climate.ZoneID(zone), nil
}
