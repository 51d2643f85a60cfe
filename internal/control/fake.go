package control

// FakeSession records session activity for test assertions.
type FakeSession struct {
	// Published contains every published message in order.
	Published []PublishedMessage

	// Subscriptions maps topic to the registered handler.
	Subscriptions map[string]func(topic string, payload []byte)

	// ConnectErrors are returned by successive Connect calls; once
	// exhausted, Connect succeeds.
	ConnectErrors []error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// ConnectCalls counts Connect attempts.
	ConnectCalls int

	// Connected tracks the session state.
	Connected bool

	// Closed tracks if Close was called.
	Closed bool
}

// PublishedMessage records a single Publish invocation.
type PublishedMessage struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// NewFakeSession creates a FakeSession that connects on the first attempt.
func NewFakeSession() *FakeSession {
	return &FakeSession{
		Subscriptions: make(map[string]func(topic string, payload []byte)),
	}
}

// Connect consumes the next scripted error, succeeding once exhausted.
func (f *FakeSession) Connect() error {
	f.ConnectCalls++
	if len(f.ConnectErrors) > 0 {
		err := f.ConnectErrors[0]
		f.ConnectErrors = f.ConnectErrors[1:]
		if err != nil {
			return err
		}
	}
	f.Connected = true
	return nil
}

// Subscribe records the handler.
func (f *FakeSession) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.Subscriptions[topic] = handler
	return nil
}

// Publish records the message.
func (f *FakeSession) Publish(topic string, payload []byte, retained bool) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, PublishedMessage{
		Topic:    topic,
		Payload:  payload,
		Retained: retained,
	})
	return nil
}

// IsConnected reports the fake session state.
func (f *FakeSession) IsConnected() bool {
	return f.Connected
}

// Close marks the session as closed.
func (f *FakeSession) Close() error {
	f.Closed = true
	f.Connected = false
	return nil
}

// Drop simulates a broker-side connection loss. Subscriptions are
// discarded along with the session, as a clean session's would be.
func (f *FakeSession) Drop() {
	f.Connected = false
	f.Subscriptions = make(map[string]func(topic string, payload []byte))
}

// Deliver invokes the handler subscribed to topic, if any.
func (f *FakeSession) Deliver(topic string, payload []byte) {
	if h, ok := f.Subscriptions[topic]; ok {
		h(topic, payload)
	}
}
