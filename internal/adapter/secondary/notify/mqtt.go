package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"iphone-alarms-sync/internal/domain"
	"iphone-alarms-sync/internal/logging"
)

// DefaultTopicPrefix is the root of every published topic.
const DefaultTopicPrefix = "iphone_alarms_sync"

// MQTTOptions are the broker connection settings.
type MQTTOptions struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// mqttClient is the part of the paho client the publisher needs.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes events to {prefix}/{phone_id}/event and retained phone
// state to {prefix}/{phone_id}/state.
type MQTT struct {
	client  mqttClient
	prefix  string
	timeout time.Duration
}

// ConnectMQTT dials the broker and returns a ready publisher.
func ConnectMQTT(opts MQTTOptions) (*MQTT, error) {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetCleanSession(true)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.Warnf("mqtt connection lost: %v", err)
	})

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", opts.Broker, token.Error())
	}
	logging.Infof("connected to mqtt broker %s", opts.Broker)
	return newMQTT(client, opts.TopicPrefix), nil
}

func newMQTT(client mqttClient, prefix string) *MQTT {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTT{client: client, prefix: prefix, timeout: 5 * time.Second}
}

// EventTopic is where fired events of phoneID are published.
func (m *MQTT) EventTopic(phoneID string) string {
	return m.prefix + "/" + phoneID + "/event"
}

// StateTopic is where the retained phone summary is published.
func (m *MQTT) StateTopic(phoneID string) string {
	return m.prefix + "/" + phoneID + "/state"
}

func (m *MQTT) PublishEvent(_ context.Context, ev domain.FiredEvent) error {
	return m.publish(m.EventTopic(ev.PhoneID), false, ev)
}

// PublishState publishes a retained snapshot so late subscribers see the
// current phone immediately.
func (m *MQTT) PublishState(_ context.Context, phoneID string, state any) error {
	return m.publish(m.StateTopic(phoneID), true, state)
}

// Close disconnects, giving in-flight messages a moment to leave.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

func (m *MQTT) publish(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	token := m.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	logging.Tracef("published %d bytes to %s", len(payload), topic)
	return nil
}
