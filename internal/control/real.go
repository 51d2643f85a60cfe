package control

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// PahoSession is a broker session over paho.mqtt.
type PahoSession struct {
	client paho.Client
}

// NewPahoSession creates a session for the given broker. Connect is not
// called; the channel's retry loop owns that. Auto-reconnect stays off:
// a clean-session reconnect would come back without the control
// subscription, so a dropped session must read as disconnected until the
// service tick re-runs ConnectAndSubscribe.
func NewPahoSession(broker, clientID string) *PahoSession {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(false).
		SetConnectRetry(false)

	return &PahoSession{client: paho.NewClient(opts)}
}

// Connect establishes the session.
func (s *PahoSession) Connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// Subscribe registers a handler at QoS 0.
func (s *PahoSession) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := s.client.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends a message at QoS 0.
func (s *PahoSession) Publish(topic string, payload []byte, retained bool) error {
	token := s.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the session is active.
func (s *PahoSession) IsConnected() bool {
	return s.client.IsConnected()
}

// Close disconnects from the broker.
func (s *PahoSession) Close() error {
	s.client.Disconnect(1000) // 1 second timeout
	return nil
}
