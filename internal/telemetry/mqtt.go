// Package telemetry republishes session events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/kongor-project/bercon/internal/config"
	"github.com/kongor-project/bercon/internal/events"
)

// Topic suffixes under the session's rcon/<session>/ namespace.
const (
	TopicConnected     = "connected"
	TopicDisconnected  = "disconnected"
	TopicError         = "error"
	TopicPlayerJoin    = "player/join"
	TopicPlayerLeave   = "player/leave"
	TopicPlayerUpdated = "player/updated"
	TopicBELog         = "log"
	TopicAdminMessage  = "admin"
)

// MQTTHandler subscribes to a session's event bus and republishes events
// as JSON under the session's topic namespace, with optional TLS/mTLS
// and broker auto-reconnect.
type MQTTHandler struct {
	mu sync.Mutex

	log       zerolog.Logger
	opts      config.MQTTOptions
	sessionID string
	bus       *events.Bus
	client    mqtt.Client
}

// NewMQTTHandler creates a handler for the given session ID, or an error
// if opts.Enabled is false.
func NewMQTTHandler(opts config.MQTTOptions, sessionID string, bus *events.Bus, log zerolog.Logger) (*MQTTHandler, error) {
	if !opts.Enabled {
		return nil, fmt.Errorf("telemetry: MQTT is disabled")
	}

	log = log.With().Str("component", "telemetry").Logger()

	h := &MQTTHandler{
		log:       log,
		opts:      opts,
		sessionID: sessionID,
		bus:       bus,
	}

	clientOpts := mqtt.NewClientOptions()
	scheme := "tcp"
	if opts.UseTLS {
		scheme = "ssl"
	}
	clientOpts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, opts.BrokerURL, opts.Port))

	if opts.ClientID != "" {
		clientOpts.SetClientID(opts.ClientID)
	} else {
		clientOpts.SetClientID(fmt.Sprintf("bercon-%s", sessionID))
	}

	clientOpts.SetAutoReconnect(true)
	clientOpts.SetMaxReconnectInterval(30 * time.Second)
	clientOpts.SetKeepAlive(60 * time.Second)
	clientOpts.SetCleanSession(false)

	if opts.UseTLS {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if opts.CertFile != "" && opts.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("telemetry: load TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		clientOpts.SetTLSConfig(tlsConfig)
	}

	clientOpts.SetOnConnectHandler(func(mqtt.Client) {
		h.log.Info().Msg("MQTT connected")
	})
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.log.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(clientOpts)
	return h, nil
}

// Start connects to the broker, subscribes to the event bus, and blocks
// until ctx is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.log.Info().Str("broker", h.opts.BrokerURL).Int("port", h.opts.Port).Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry: connect: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.publishDisconnected("shutdown")
	h.client.Disconnect(5000)
	h.log.Info().Msg("MQTT disconnected")
	return nil
}

func (h *MQTTHandler) subscribeEvents() {
	h.bus.Subscribe(events.TypeConnected, "mqtt", func(e events.Event) { h.publish(TopicConnected, e.Payload) })
	h.bus.Subscribe(events.TypeDisconnected, "mqtt", func(e events.Event) { h.publish(TopicDisconnected, e.Payload) })
	h.bus.Subscribe(events.TypeError, "mqtt", func(e events.Event) { h.publish(TopicError, e.Payload) })
	h.bus.Subscribe(events.TypePlayerJoin, "mqtt", func(e events.Event) { h.publish(TopicPlayerJoin, e.Payload) })
	h.bus.Subscribe(events.TypePlayerLeave, "mqtt", func(e events.Event) { h.publish(TopicPlayerLeave, e.Payload) })
	h.bus.Subscribe(events.TypePlayerUpdated, "mqtt", func(e events.Event) { h.publish(TopicPlayerUpdated, e.Payload) })
	h.bus.Subscribe(events.TypeBELog, "mqtt", func(e events.Event) { h.publish(TopicBELog, e.Payload) })
	h.bus.Subscribe(events.TypeAdminMessage, "mqtt", func(e events.Event) { h.publish(TopicAdminMessage, e.Payload) })
}

func (h *MQTTHandler) publish(topicSuffix string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	msg := map[string]interface{}{
		"session":   h.sessionID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"payload":   payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn().Err(err).Str("topic", topicSuffix).Msg("failed to marshal MQTT message")
		return
	}

	topic := fmt.Sprintf("rcon/%s/%s", h.sessionID, topicSuffix)
	token := h.client.Publish(topic, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

func (h *MQTTHandler) publishDisconnected(reason string) {
	h.publish(TopicDisconnected, map[string]interface{}{"reason": reason})
}
