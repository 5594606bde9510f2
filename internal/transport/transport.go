// Package transport defines the Transport external collaborator:
// delivery of Messages to subscriber sockets. The wire framing and
// event loop runtime are out of scope; this package specifies the
// contract and ships two reference implementations.
package transport

import "github.com/AlexxNica/RocketSpeed/internal/model"

// Transport delivers messages to one or more subscribers. A single
// delivery call accepting a set of subscriber ids lets a sink fan a
// record out to every interested subscriber in one batch.
type Transport interface {
	// Send delivers msg to every subscriber in subs. Returns false if the
	// transport could not accept the delivery for at least one subscriber
	// (e.g. its outbound queue is full); callers treat this as sink
	// backpressure via internal/flowcontrol.
	Send(subs []model.SubscriberID, msg model.Message) bool
}
