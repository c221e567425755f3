package chain

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/babylonlabs-io/sentinel/config/params"
)

// Subscription is one JSON-RPC subscription issued after connecting.
type Subscription struct {
	ID    string
	Query string
}

// DefaultSubscriptions returns the two subscriptions the pipelines
// consume: new blocks, and checkpoint-sealed transactions.
func DefaultSubscriptions() []Subscription {
	return []Subscription{
		{ID: "newBlock", Query: "tm.event='NewBlock'"},
		{ID: "checkpoint_for_bls", Query: "tm.event='Tx' AND babylon.checkpointing.v1.EventCheckpointSealed.checkpoint CONTAINS 'epoch_num'"},
	}
}

type subscribeRequest struct {
	JSONRPC string   `json:"jsonrpc"`
	Method  string   `json:"method"`
	ID      string   `json:"id"`
	Params  []string `json:"params"`
}

// Subscriber owns the long-lived event stream for one network. It
// dials the current websocket endpoint, issues the subscriptions, and
// feeds raw frames into the router. On disconnect it reconnects with
// exponential backoff; once the per-endpoint attempt budget is spent it
// rotates to the next endpoint and resets the counter.
type Subscriber struct {
	network       string
	endpoints     []string
	subscriptions []Subscription
	router        *Router

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	conn      *websocket.Conn
	idx       int
	connected bool
}

// NewSubscriber constructs a subscriber over the given endpoints.
func NewSubscriber(ctx context.Context, network string, endpoints []string, subs []Subscription, router *Router) (*Subscriber, error) {
	if len(endpoints) == 0 {
		return nil, errors.Errorf("no websocket endpoints configured for network %s", network)
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Subscriber{
		network:       network,
		endpoints:     endpoints,
		subscriptions: subs,
		router:        router,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start runs the subscription loop until the subscriber is stopped.
func (s *Subscriber) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop closes the stream and waits for the loop to exit.
func (s *Subscriber) Stop() error {
	s.cancel()
	s.mu.Lock()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			log.WithError(err).Debug("Could not close websocket connection")
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// Status reports stream health.
func (s *Subscriber) Status() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return errors.New("event stream disconnected")
	}
	return nil
}

func (s *Subscriber) run() {
	defer s.wg.Done()
	attempt := 0
	for {
		if s.ctx.Err() != nil {
			return
		}
		endpoint := s.currentEndpoint()
		err := s.streamOnce(endpoint)
		if s.ctx.Err() != nil {
			return
		}
		attempt++
		wsReconnects.Inc()
		delay := backoffDelay(params.Get().WSBackoffBase, attempt)
		log.WithError(err).WithFields(logrus.Fields{
			"network":  s.network,
			"endpoint": endpoint,
			"attempt":  attempt,
			"delay":    delay,
		}).Warn("Event stream disconnected, reconnecting")
		if attempt >= params.Get().WSMaxAttempts {
			next := s.rotateEndpoint()
			attempt = 0
			log.WithFields(logrus.Fields{
				"network": s.network,
				"next":    next,
			}).Warn("Reconnect budget exhausted, rotating event endpoint")
		}
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}
	}
}

// backoffDelay computes base * min(2^(attempt-1), 10).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	factor := int64(1)
	for i := 1; i < attempt && factor < 10; i++ {
		factor *= 2
	}
	if factor > 10 {
		factor = 10
	}
	return base * time.Duration(factor)
}

func (s *Subscriber) currentEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoints[s.idx]
}

func (s *Subscriber) rotateEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx = (s.idx + 1) % len(s.endpoints)
	return s.endpoints[s.idx]
}

// streamOnce dials, subscribes, and pumps frames until the connection
// drops or the subscriber is stopped.
func (s *Subscriber) streamOnce(endpoint string) error {
	dialer := websocket.Dialer{HandshakeTimeout: params.Get().HTTPTimeout}
	conn, _, err := dialer.DialContext(s.ctx, websocketURL(endpoint), nil)
	if err != nil {
		return errors.Wrapf(err, "could not dial %s", endpoint)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.connected = false
		s.mu.Unlock()
		if err := conn.Close(); err != nil {
			log.WithError(err).Debug("Could not close websocket connection")
		}
	}()

	for _, sub := range s.subscriptions {
		req := subscribeRequest{
			JSONRPC: "2.0",
			Method:  "subscribe",
			ID:      sub.ID,
			Params:  []string{sub.Query},
		}
		if err := conn.WriteJSON(req); err != nil {
			return errors.Wrapf(err, "could not subscribe %s", sub.ID)
		}
	}
	log.WithFields(logrus.Fields{
		"network":  s.network,
		"endpoint": endpoint,
	}).Info("Event stream connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read failed")
		}
		s.router.Route(raw)
	}
}

// websocketURL normalizes a configured endpoint to the node's
// websocket path, swapping the protocol when an http(s) URL was given.
func websocketURL(endpoint string) string {
	u := endpoint
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	u = strings.TrimRight(u, "/")
	if !strings.HasSuffix(u, "/websocket") {
		u += "/websocket"
	}
	return u
}
