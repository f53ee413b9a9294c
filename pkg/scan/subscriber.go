package scan

import "io"

// Handler is invoked once per received sample.
type Handler func(s *Sample)

// Subscriber delivers samples published on a topic to a handler.
// Implementations decide which goroutine runs the handler; callers that
// need serial processing must serialise inside the handler.
// Closing the returned subscription stops delivery.
type Subscriber interface {
	Subscribe(topic string, h Handler) (io.Closer, error)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(topic string, h Handler) (io.Closer, error)

// Subscribe calls f(topic, h).
func (f SubscriberFunc) Subscribe(topic string, h Handler) (io.Closer, error) {
	return f(topic, h)
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error {
	return f()
}
