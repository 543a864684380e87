package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// StreamConfig configures ConfirmStream behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Confirmation is a push notification that a settlement receipt finalized.
type Confirmation struct {
	ReceiptID string
	Slot      int64
	Err       interface{} // non-nil when the transfer failed on-chain
}

// ReceiptSubscriber is the subset of ConfirmStream the check runner needs.
type ReceiptSubscriber interface {
	Subscribe(receiptID string) (<-chan Confirmation, error)
}

// ConfirmStream subscribes to settlement confirmations over WebSocket.
// The daemon uses it to record settlement finality without polling.
type ConfirmStream struct {
	endpoint string
	config   StreamConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps receipt ID to the channel waiting for its confirmation.
	subs   map[string]chan Confirmation
	subsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

var _ ReceiptSubscriber = (*ConfirmStream)(nil)

// NewConfirmStream connects to the endpoint and starts the read loop.
func NewConfirmStream(ctx context.Context, endpoint string, config *StreamConfig, logger *log.Logger) (*ConfirmStream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &ConfirmStream{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		subs:     make(map[string]chan Confirmation),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	return s, nil
}

// connect establishes the WebSocket connection.
func (s *ConfirmStream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	s.conn = conn
	return nil
}

type streamRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type streamMessage struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Receipt string      `json:"receipt"`
			Slot    int64       `json:"slot"`
			Err     interface{} `json:"err"`
		} `json:"result"`
	} `json:"params"`
}

// Subscribe registers interest in a receipt. The returned channel receives
// exactly one Confirmation and is then closed.
func (s *ConfirmStream) Subscribe(receiptID string) (<-chan Confirmation, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("stream closed")
	}

	ch := make(chan Confirmation, 1)
	s.subsMu.Lock()
	s.subs[receiptID] = ch
	s.subsMu.Unlock()

	req := streamRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  "receiptSubscribe",
		Params:  []interface{}{receiptID},
	}
	if err := s.writeJSON(req); err != nil {
		s.subsMu.Lock()
		delete(s.subs, receiptID)
		s.subsMu.Unlock()
		return nil, fmt.Errorf("subscribe receipt: %w", err)
	}

	return ch, nil
}

// writeJSON writes a message under the connection lock.
func (s *ConfirmStream) writeJSON(v interface{}) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteJSON(v)
}

// readLoop reads messages and dispatches confirmations, reconnecting with
// backoff on failure.
func (s *ConfirmStream) readLoop() {
	defer s.wg.Done()

	delay := s.config.ReconnectDelay
	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Printf("confirm stream read error: %v, reconnecting in %v", err, delay)
			select {
			case <-s.done:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.config.MaxReconnectDelay {
				delay = s.config.MaxReconnectDelay
			}
			if err := s.connect(context.Background()); err != nil {
				s.logger.Printf("confirm stream reconnect failed: %v", err)
				continue
			}
			s.resubscribe()
			continue
		}
		delay = s.config.ReconnectDelay

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // subscription acks and pongs are not notifications
		}
		if msg.Method != "receiptNotification" || msg.Params.Result.Receipt == "" {
			continue
		}

		s.subsMu.Lock()
		ch, ok := s.subs[msg.Params.Result.Receipt]
		if ok {
			delete(s.subs, msg.Params.Result.Receipt)
		}
		s.subsMu.Unlock()

		if ok {
			ch <- Confirmation{
				ReceiptID: msg.Params.Result.Receipt,
				Slot:      msg.Params.Result.Slot,
				Err:       msg.Params.Result.Err,
			}
			close(ch)
		}
	}
}

// resubscribe re-issues receiptSubscribe for every receipt still waiting,
// so subscriptions survive a reconnect instead of hanging until timeout.
func (s *ConfirmStream) resubscribe() {
	s.subsMu.Lock()
	pending := make([]string, 0, len(s.subs))
	for id := range s.subs {
		pending = append(pending, id)
	}
	s.subsMu.Unlock()

	for _, id := range pending {
		req := streamRequest{
			JSONRPC: "2.0",
			ID:      s.requestID.Add(1),
			Method:  "receiptSubscribe",
			Params:  []interface{}{id},
		}
		if err := s.writeJSON(req); err != nil {
			s.logger.Printf("resubscribe receipt %s failed: %v", id, err)
		}
	}
}

// pingLoop keeps the connection alive.
func (s *ConfirmStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.logger.Printf("confirm stream ping failed: %v", err)
				}
			}
			s.connMu.Unlock()
		}
	}
}

// Close shuts the stream down and closes all pending subscription channels.
func (s *ConfirmStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()

	s.subsMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subsMu.Unlock()

	return nil
}
