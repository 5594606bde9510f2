// Package ssetransport is an HTTP+Server-Sent-Events Transport, grounded
// on the prior single-node runtime's internal/server/http/controllers/sse.go sseSink pattern
// (Send/Flush/Context over an http.ResponseWriter), adapted to the
// Control Tower's model.Message sum type. One goroutine serves one
// subscriber's HTTP connection for its lifetime.
package ssetransport

import (
	"net/http"
	"sync"

	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/sugawarayuuta/sonnet"
)

// wireMessage is the JSON shape written as an SSE "data:" payload.
type wireMessage struct {
	Kind      string `json:"kind"`
	Topic     string `json:"topic"`
	PrevSeqno uint64 `json:"prev_seqno,omitempty"`
	Seqno     uint64 `json:"seqno,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
	GapType   string `json:"gap_type,omitempty"`
	From      uint64 `json:"from,omitempty"`
	To        uint64 `json:"to,omitempty"`
	Status    int    `json:"status,omitempty"`
}

func toWire(msg model.Message) wireMessage {
	w := wireMessage{Topic: msg.Topic.String()}
	switch msg.Kind {
	case model.MessageDeliver:
		w.Kind = "deliver"
		w.PrevSeqno = uint64(msg.PrevSeqno)
		w.Seqno = uint64(msg.Seqno)
		w.Payload = msg.Payload
	case model.MessageGap:
		w.Kind = "gap"
		w.GapType = msg.GapType.String()
		w.From = uint64(msg.From)
		w.To = uint64(msg.To)
	case model.MessageStatus:
		w.Kind = "status"
		w.Status = int(msg.Status)
	}
	return w
}

// sink is the per-subscriber SSE writer, grounded on the prior single-node runtime's
// sseSink{w, r} value type.
type sink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s sink) send(msg model.Message) error {
	b, err := sonnet.Marshal(toWire(msg))
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Transport is an HTTP+SSE Transport. Handlers register a subscriber's
// connection with Register before the tailer subscribes it, and
// Unregister when the connection closes.
type Transport struct {
	mu    sync.Mutex
	sinks map[model.SubscriberID]sink
}

// New returns an empty Transport.
func New() *Transport {
	return &Transport{sinks: make(map[model.SubscriberID]sink)}
}

// Register attaches w as the SSE sink for sub for the lifetime of the
// current request. Callers should set standard SSE headers on w before
// calling Register; this is left to the HTTP handler (see internal/admin).
func (t *Transport) Register(sub model.SubscriberID, w http.ResponseWriter) {
	flusher, _ := w.(http.Flusher)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks[sub] = sink{w: w, flusher: flusher}
}

// Unregister detaches sub's sink, typically called when the request
// context is done.
func (t *Transport) Unregister(sub model.SubscriberID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sinks, sub)
}

// Send writes msg as an SSE event to every registered subscriber in subs.
// Reports false if any addressed subscriber is not currently registered
// or a write failed, signaling backpressure to the caller.
func (t *Transport) Send(subs []model.SubscriberID, msg model.Message) bool {
	t.mu.Lock()
	targets := make([]sink, 0, len(subs))
	for _, sub := range subs {
		s, ok := t.sinks[sub]
		if !ok {
			t.mu.Unlock()
			return false
		}
		targets = append(targets, s)
	}
	t.mu.Unlock()

	ok := true
	for _, s := range targets {
		if err := s.send(msg); err != nil {
			ok = false
		}
	}
	return ok
}
