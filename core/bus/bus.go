// Package bus defines the message-bus capability the bridge depends on.
// The transport's own reliability (reconnect, TLS, QoS) stays behind
// this interface.
package bus

// Bus is a connected message-bus session.
type Bus interface {
	// Publish sends payload to topic, optionally retained by the broker.
	Publish(topic string, payload []byte, retain bool) error

	// Subscribe registers interest in a topic. Inbound messages arrive
	// through the message handler.
	Subscribe(topic string) error

	// SetMessageHandler installs the callback for inbound messages.
	SetMessageHandler(fn func(topic string, payload []byte))

	// SetConnectHandler installs the callback invoked on every
	// (re)connect. resumed is true when the broker restored a previous
	// session, in which case retained discovery is still in place.
	SetConnectHandler(fn func(resumed bool))

	// SetDisconnectHandler installs the callback invoked when the
	// connection drops.
	SetDisconnectHandler(fn func(err error))
}
