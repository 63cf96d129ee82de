package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantrel/lixifeed/internal/broker"
	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/logger"
)

const (
	pongWait  = 60 * time.Second
	writeWait = 10 * time.Second
)

// LiveSource is the brokerage websocket push feed. Starting it performs
// the two-step handshake (create a streaming session over REST, then
// dial the websocket and subscribe) within the configured connection
// timeout. Quote events are forwarded as-is; validation happens in the
// controller.
type LiveSource struct {
	cfg     config.BrokerConfig
	broker  *broker.Client
	symbol  string
	emit    emitFunc
	onError errorFunc
	logger  *logger.Logger

	conn    *websocket.Conn
	reading bool
	connMu  sync.Mutex

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewLiveSource creates a live push source for one symbol.
func NewLiveSource(cfg config.BrokerConfig, brokerClient *broker.Client, symbol string, emit emitFunc, onError errorFunc, log *logger.Logger) *LiveSource {
	return &LiveSource{
		cfg:     cfg,
		broker:  brokerClient,
		symbol:  symbol,
		emit:    emit,
		onError: onError,
		logger:  log,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Kind returns KindLive.
func (s *LiveSource) Kind() Kind {
	return KindLive
}

// subscribeMessage is the payload sent after connecting.
type subscribeMessage struct {
	Symbols   []string `json:"symbols"`
	SessionID string   `json:"sessionid"`
	Filter    []string `json:"filter"`
	Linebreak bool     `json:"linebreak"`
}

// streamEvent is one inbound push message. Non-quote event types are
// forwarded by the upstream on the same connection and are skipped here.
type streamEvent struct {
	Type string `json:"type"`
	market.RawQuote
}

// Start performs the session handshake and websocket subscription.
// Exceeding the connection timeout is a startup failure, not a hang.
func (s *LiveSource) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectionTimeout)
	defer cancel()

	session, err := s.broker.CreateStreamSession(ctx)
	if err != nil {
		return fmt.Errorf("stream session handshake failed: %w", err)
	}

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, session.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	sub := subscribeMessage{
		Symbols:   []string{s.symbol},
		SessionID: session.SessionID,
		Filter:    []string{"quote"},
		Linebreak: true,
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe failed: %w", err)
	}
	conn.SetWriteDeadline(time.Time{})

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.connMu.Lock()
	s.conn = conn
	s.reading = true
	s.connMu.Unlock()

	s.logger.WithField("symbol", s.symbol).Info("Connected to live quote stream")

	go s.readLoop()

	return nil
}

// readLoop reads push messages until the connection drops or Stop is
// called. A read failure while running is a connection failure and is
// reported once through onError.
func (s *LiveSource) readLoop() {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		var event streamEvent
		if err := s.conn.ReadJSON(&event); err != nil {
			select {
			case <-s.stopCh:
				// Teardown closed the connection; not a failure.
				return
			default:
			}

			s.logger.WithError(err).Warn("Live stream read failed")
			s.onError(fmt.Errorf("live stream read failed: %w", err))
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		if event.Type != "quote" {
			continue
		}

		quote := event.RawQuote
		quote.Symbol = s.symbol
		quote.Timestamp = time.Now()
		s.emit(quote)
	}
}

// Stop closes the connection and waits for the read loop to exit.
func (s *LiveSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)

		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		reading := s.reading
		s.connMu.Unlock()

		if reading {
			<-s.doneCh
		}
	})
}
