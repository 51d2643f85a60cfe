// Package control implements the authenticated MQTT command protocol: it
// owns the broker session, decodes inbound pin commands, dispatches them to
// the pin controller, and republishes the full pin state retained.
package control

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sweeney/appliance-control/internal/pins"
)

// ControlTopic receives command documents.
const ControlTopic = "biosync/appliances/control"

// StateTopic receives retained state snapshots.
const StateTopic = "biosync/appliances/state"

// DefaultBroker is the broker used when none is configured.
const DefaultBroker = "tcp://broker.emqx.io:1883"

// Session retry bounds. Exhausting them leaves the channel disconnected
// until the next service tick re-invokes ConnectAndSubscribe.
const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// Session is a broker session.
type Session interface {
	// Connect establishes the session.
	Connect() error

	// Subscribe registers a handler for a topic. The handler may be
	// called from the transport's goroutine and must not block.
	Subscribe(topic string, handler func(topic string, payload []byte)) error

	// Publish sends a message.
	Publish(topic string, payload []byte, retained bool) error

	// IsConnected reports whether the session is active.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// Message is one inbound broker message.
type Message struct {
	Topic   string
	Payload []byte
}

// Command is the control document: a shared secret plus desired pin levels.
type Command struct {
	Password string            `json:"password"`
	Pins     map[string]string `json:"pins"`
}

// Channel binds a Session to the pin controller.
type Channel struct {
	session Session
	ctrl    *pins.Controller

	// secret returns the currently stored control secret, so a secret
	// updated through provisioning takes effect without a reconnect.
	secret func() string

	inbound chan Message

	// Sleep is the delay function between session retries. Overridable
	// so tests run without wall-clock delays.
	Sleep func(time.Duration)
}

// NewChannel creates a Channel. secret must return the current stored
// control secret.
func NewChannel(session Session, ctrl *pins.Controller, secret func() string) *Channel {
	return &Channel{
		session: session,
		ctrl:    ctrl,
		secret:  secret,
		inbound: make(chan Message, 16),
		Sleep:   time.Sleep,
	}
}

// Inbound returns the channel the main loop consumes messages from.
// Delivery into it never blocks the transport; overflow is dropped.
func (c *Channel) Inbound() <-chan Message {
	return c.inbound
}

// IsConnected reports whether the broker session is active.
func (c *Channel) IsConnected() bool {
	return c.session.IsConnected()
}

// Close disconnects from the broker.
func (c *Channel) Close() error {
	return c.session.Close()
}

// ConnectAndSubscribe establishes the session, subscribes to the control
// topic, and publishes the current pin state. Retries up to connectAttempts
// with a fixed delay; exhaustion returns an error and the caller stays up.
func (c *Channel) ConnectAndSubscribe() error {
	var lastErr error
	for i := 0; i < connectAttempts; i++ {
		if i > 0 {
			c.Sleep(connectDelay)
		}
		if err := c.session.Connect(); err != nil {
			lastErr = err
			log.Printf("control: broker connect attempt %d/%d: %v", i+1, connectAttempts, err)
			continue
		}
		if err := c.session.Subscribe(ControlTopic, c.enqueue); err != nil {
			lastErr = err
			log.Printf("control: subscribe attempt %d/%d: %v", i+1, connectAttempts, err)
			continue
		}
		log.Printf("control: subscribed to %s", ControlTopic)
		return c.PublishState()
	}
	return fmt.Errorf("broker session after %d attempts: %w", connectAttempts, lastErr)
}

// enqueue hands a transport-delivered message to the main loop.
func (c *Channel) enqueue(topic string, payload []byte) {
	select {
	case c.inbound <- Message{Topic: topic, Payload: payload}:
	default:
		log.Printf("control: inbound queue full, dropping message on %s", topic)
	}
}

// HandleInbound authenticates and applies one command message. Malformed
// payloads and wrong secrets are dropped without any side effect or reply.
// All pin updates from one message are applied before the single resulting
// state publish.
func (c *Channel) HandleInbound(msg Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		log.Printf("control: discarding malformed payload on %s: %v", msg.Topic, err)
		return
	}

	if cmd.Password != c.secret() {
		// Fire-and-forget protocol: no negative acknowledgement, so an
		// unauthenticated sender learns nothing.
		log.Printf("control: rejected command with bad secret")
		return
	}

	for label, value := range cmd.Pins {
		// Unknown labels are ignored inside Set.
		if err := c.ctrl.Set(label, truthy(value)); err != nil {
			log.Printf("control: set %s: %v", label, err)
		}
	}

	if err := c.PublishState(); err != nil {
		log.Printf("control: publish state: %v", err)
	}
}

// PublishState publishes the full pin snapshot retained, so late-joining
// observers immediately see last-known state.
func (c *Channel) PublishState() error {
	payload, err := FormatState(c.ctrl.Snapshot())
	if err != nil {
		return fmt.Errorf("format state: %w", err)
	}
	if err := c.session.Publish(StateTopic, payload, true); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	return nil
}

// FormatState encodes a pin snapshot as {"<label>":"on"|"off", ...}.
func FormatState(snapshot map[string]bool) ([]byte, error) {
	doc := make(map[string]string, len(snapshot))
	for label, on := range snapshot {
		if on {
			doc[label] = "on"
		} else {
			doc[label] = "off"
		}
	}
	return json.Marshal(doc)
}

// truthy interprets a command value: "on" and "high" (any case) switch the
// output on, anything else switches it off.
func truthy(value string) bool {
	return strings.EqualFold(value, "on") || strings.EqualFold(value, "high")
}

// ClientID derives the broker client identifier, unique per device.
func ClientID() string {
	return "ApplianceControl_" + deviceID()
}

// deviceID prefers the machine ID and falls back to the hostname.
func deviceID() string {
	if b, err := os.ReadFile("/etc/machine-id"); err == nil {
		id := strings.TrimSpace(string(b))
		if len(id) >= 8 {
			return id[:8]
		}
		if id != "" {
			return id
		}
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}
