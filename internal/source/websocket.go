package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sawpanic/scbot/internal/domain"
)

// wireMessage mirrors the Message wire shape plus a
// channel_id routing field used by the subscribe handler dispatch.
type wireMessage struct {
	ID         int64  `json:"id"`
	ChannelID  string `json:"channel_id"`
	Timestamp  int64  `json:"timestamp"`
	Text       string `json:"text"`
	Engagement struct {
		Forwards  int64 `json:"forwards"`
		Reactions int64 `json:"reactions"`
		Replies   int64 `json:"replies"`
	} `json:"engagement"`
}

func (w wireMessage) toDomain() domain.Message {
	return domain.Message{
		ID:        w.ID,
		ChannelID: w.ChannelID,
		Timestamp: w.Timestamp,
		Text:      w.Text,
		Engagement: domain.Engagement{
			Forwards:  w.Engagement.Forwards,
			Reactions: w.Engagement.Reactions,
			Replies:   w.Engagement.Replies,
		},
	}
}

// WSSource is a generic JSON-over-websocket Source with a REST companion
// for fetch_history and exponential-backoff auto-reconnect on drop.
// Grounded on internal/providers/kraken/client.go's websocket connection
// handling (wsConn, ping-based health check, reconnect-on-failure).
type WSSource struct {
	wsURL      string
	historyURL string
	httpClient *http.Client

	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]Handler
	dialer   *websocket.Dialer
	closed   bool
}

// NewWSSource constructs a WSSource. historyURL is the REST base used for
// FetchHistory (e.g. "https://bridge.internal/history").
func NewWSSource(wsURL, historyURL string) *WSSource {
	return &WSSource{
		wsURL:       wsURL,
		historyURL:  historyURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		baseBackoff: time.Second,
		maxBackoff:  time.Minute,
		handlers:    make(map[string]Handler),
		dialer:      websocket.DefaultDialer,
	}
}

// Connect dials the websocket and starts the read-and-dispatch loop. The
// loop reconnects with exponential backoff on any read error until
// Disconnect is called.
func (s *WSSource) Connect(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("source: dial %s: %w", s.wsURL, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.closed = false
	s.mu.Unlock()

	go s.readLoop(ctx)
	return nil
}

func (s *WSSource) readLoop(ctx context.Context) {
	backoff := s.baseBackoff
	for {
		s.mu.Lock()
		conn := s.conn
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			s.mu.Lock()
			stopped := s.closed
			s.mu.Unlock()
			if stopped {
				return
			}
			if backoff < s.maxBackoff {
				backoff *= 2
				if backoff > s.maxBackoff {
					backoff = s.maxBackoff
				}
			}
			if reconnErr := s.Connect(ctx); reconnErr != nil {
				continue
			}
			return // new readLoop goroutine owns dispatch from here
		}
		backoff = s.baseBackoff

		var wm wireMessage
		if err := json.Unmarshal(raw, &wm); err != nil {
			continue
		}

		s.mu.Lock()
		h, ok := s.handlers[wm.ChannelID]
		s.mu.Unlock()
		if ok {
			h(wm.toDomain())
		}
	}
}

// Disconnect closes the underlying connection and stops reconnect attempts.
func (s *WSSource) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Subscribe registers handler for channelID and, if connected, sends a
// subscribe frame upstream.
func (s *WSSource) Subscribe(channelID string, handler Handler) error {
	s.mu.Lock()
	s.handlers[channelID] = handler
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	frame := map[string]string{"type": "subscribe", "channel_id": channelID}
	return conn.WriteJSON(frame)
}

// FetchHistory pulls an ordered page of messages via the REST companion
// endpoint, used by the Historical Bootstrap Orchestrator.
func (s *WSSource) FetchHistory(ctx context.Context, channelID string, fromID int64, limit int) ([]domain.Message, error) {
	q := url.Values{}
	q.Set("channel_id", channelID)
	q.Set("from_id", strconv.FormatInt(fromID, 10))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.historyURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: fetch_history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("source: fetch_history: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var wire []wireMessage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("source: decode history: %w", err)
	}

	out := make([]domain.Message, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toDomain())
	}
	return out, nil
}
