package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"marketpulse/internal/config"
	"marketpulse/internal/metrics"
	"marketpulse/internal/models"
	"marketpulse/internal/store"
)

// Session is one connected client. Frames flow through a bounded send buffer;
// a slow client loses non-critical frames, and a client too slow to take a
// critical frame is disconnected with a lagging close.
type Session struct {
	ID     string
	conn   *websocket.Conn
	logger *zap.Logger
	cfg    config.DeliveryConfig
	queue  *Queue

	primary string

	mu      sync.RWMutex
	subs    map[string]bool
	symbols map[string]struct{}

	out     chan serverFrame
	events  chan store.Event
	inbound chan clientFrame

	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, topic string, cfg config.DeliveryConfig, logger *zap.Logger) *Session {
	buf := cfg.SendBuffer
	if buf <= 0 {
		buf = 64
	}
	cooldowns := DefaultCooldowns()
	for name, secs := range cfg.Cooldowns {
		p := models.Priority(name)
		if p.Valid() {
			cooldowns[p] = time.Duration(secs) * time.Second
		}
	}
	s := &Session{
		ID:      uuid.NewString(),
		conn:    conn,
		logger:  logger,
		cfg:     cfg,
		primary: topic,
		queue: NewQueue(QueueConfig{
			Cooldowns:      cooldowns,
			VisualDuration: cfg.VisualDuration,
			MaxVoiceHold:   cfg.MaxVoiceHold,
		}),
		subs:    map[string]bool{},
		symbols: map[string]struct{}{},
		out:     make(chan serverFrame, buf),
		events:  make(chan store.Event, 64),
		inbound: make(chan clientFrame, 16),
		closed:  make(chan struct{}),
	}
	if validTopic(topic) {
		s.subs[topic] = true
		metrics.ActiveSessions.WithLabelValues(topic).Inc()
	}
	return s
}

func (s *Session) subscribedTo(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subs[topic]
}

// wantsSymbol applies the per-session symbol filter. An empty filter means
// everything.
func (s *Session) wantsSymbol(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.symbols) == 0 {
		return true
	}
	_, ok := s.symbols[symbol]
	return ok
}

// HandleEvent is called by the hub for every store mutation. Non-blocking; a
// full event queue drops non-critical events and disconnects on a critical.
func (s *Session) HandleEvent(ev store.Event) {
	if !s.subscribedTo(TopicNotifications) {
		return
	}
	select {
	case s.events <- ev:
	default:
		if ev.Notification.Priority == models.PriorityCritical {
			s.close(websocket.StatusPolicyViolation, "lagging")
			return
		}
		metrics.DroppedFrames.WithLabelValues(TopicNotifications).Inc()
	}
}

// HandleTicks fans a tick batch out: price subscribers get one consolidated
// symbol-to-price map, market-data subscribers get one frame per symbol.
func (s *Session) HandleTicks(prices map[string]float64, ts time.Time) {
	if s.subscribedTo(TopicPrices) {
		filtered := make(map[string]float64, len(prices))
		for sym, price := range prices {
			if s.wantsSymbol(sym) {
				filtered[sym] = price
			}
		}
		if len(filtered) > 0 {
			s.send(serverFrame{
				Type:      framePriceUpdate,
				Topic:     TopicPrices,
				Timestamp: ts.UnixMilli(),
				Prices:    filtered,
			})
		}
	}
	if s.subscribedTo(TopicMarketData) {
		for sym, price := range prices {
			if !s.wantsSymbol(sym) {
				continue
			}
			s.send(serverFrame{
				Type:      framePriceUpdate,
				Topic:     TopicMarketData,
				Timestamp: ts.UnixMilli(),
				Prices:    map[string]float64{sym: price},
			})
		}
	}
}

// HandleMarketData forwards a candle refresh to market-data subscribers.
func (s *Session) HandleMarketData(symbol, timeframe string, candles []models.Candle) {
	if !s.subscribedTo(TopicMarketData) || !s.wantsSymbol(symbol) {
		return
	}
	s.send(serverFrame{
		Type:      frameOHLCVUpdate,
		Topic:     TopicMarketData,
		Symbol:    symbol,
		Timeframe: timeframe,
		Candles:   candles,
	})
}

// send enqueues a frame for the writer. On overflow the oldest buffered frame
// is sacrificed for a new one; critical frames are never dropped, the session
// is closed instead.
func (s *Session) send(f serverFrame) {
	select {
	case s.out <- f:
		return
	default:
	}
	if f.critical() {
		s.close(websocket.StatusPolicyViolation, "lagging")
		return
	}
	metrics.DroppedFrames.WithLabelValues(f.Topic).Inc()
	select {
	case <-s.out:
	default:
	}
	select {
	case s.out <- f:
	default:
	}
	// Best-effort heads-up that delivery is lossy right now.
	select {
	case s.out <- serverFrame{Type: frameLagging, Message: "send buffer full, frames dropped"}:
	default:
	}
}

func (s *Session) close(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close(code, reason)
	})
}

// run owns the session until the connection dies or ctx is cancelled.
func (s *Session) run(ctx context.Context) {
	defer s.close(websocket.StatusNormalClosure, "bye")
	defer s.dropTopicGauges()

	go s.readLoop(ctx)
	go s.writeLoop(ctx)

	s.send(serverFrame{Type: frameConnected, SessionID: s.ID, Topic: s.primary})

	pingEvery := s.cfg.PingInterval
	if pingEvery <= 0 {
		pingEvery = 30 * time.Second
	}
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	missedPings := 0

	wake := time.NewTimer(time.Hour)
	if !wake.Stop() {
		<-wake.C
	}
	defer wake.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				missedPings++
				if missedPings >= 2 {
					s.close(websocket.StatusGoingAway, "ping timeout")
					return
				}
			} else {
				missedPings = 0
			}
		case ev := <-s.events:
			s.send(serverFrame{Type: frameEvent, Topic: TopicNotifications, Event: &ev})
			if ev.Kind == store.EventCreated && s.queue.Enqueue(ev.Notification) {
				s.advanceQueue(wake)
			}
		case f := <-s.inbound:
			s.handleClientFrame(f, wake)
		case <-wake.C:
			s.advanceQueue(wake)
		}
	}
}

func (s *Session) handleClientFrame(f clientFrame, wake *time.Timer) {
	now := time.Now()
	switch f.Type {
	case framePing:
		s.send(serverFrame{Type: framePong})
	case frameSubscribe:
		topic := f.Topic
		if topic == "" {
			topic = s.primary
		}
		if !validTopic(topic) {
			s.send(serverFrame{Type: frameError, Message: "unknown topic " + topic})
			return
		}
		s.mu.Lock()
		fresh := !s.subs[topic]
		s.subs[topic] = true
		for _, sym := range f.Symbols {
			s.symbols[sym] = struct{}{}
		}
		s.mu.Unlock()
		if fresh {
			metrics.ActiveSessions.WithLabelValues(topic).Inc()
		}
		s.send(serverFrame{Type: frameSubscribed, Topic: topic})
	case frameUnsubscribe:
		topic := f.Topic
		if topic == "" {
			topic = s.primary
		}
		s.mu.Lock()
		had := s.subs[topic]
		if len(f.Symbols) > 0 {
			// Narrowing the symbol filter keeps the topic alive.
			for _, sym := range f.Symbols {
				delete(s.symbols, sym)
			}
			had = false
		} else {
			delete(s.subs, topic)
		}
		s.mu.Unlock()
		if had {
			metrics.ActiveSessions.WithLabelValues(topic).Dec()
		}
		s.send(serverFrame{Type: frameUnsubscribed, Topic: topic})
	case frameAck, frameVoiceDone:
		s.queue.VoiceDone(f.ID, now)
		s.advanceQueue(wake)
	case frameDismiss:
		s.queue.Dismiss(f.ID, now)
		s.advanceQueue(wake)
	default:
		s.send(serverFrame{Type: frameError, Message: "unknown frame type " + f.Type})
	}
}

// advanceQueue runs due presentation transitions and re-arms the wake timer.
func (s *Session) advanceQueue(wake *time.Timer) {
	now := time.Now()
	for _, ev := range s.queue.Advance(now) {
		if ev.Kind == EventPresent {
			n := ev.Notification
			s.send(serverFrame{Type: framePresent, Topic: TopicNotifications, Notification: &n})
		}
	}
	if !wake.Stop() {
		select {
		case <-wake.C:
		default:
		}
	}
	if at, ok := s.queue.NextWake(now); ok {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		wake.Reset(d)
	}
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			s.close(websocket.StatusNormalClosure, "read closed")
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		f, err := parseClientFrame(data)
		if err != nil {
			s.send(serverFrame{Type: frameError, Message: "malformed frame"})
			continue
		}
		select {
		case s.inbound <- f:
		case <-s.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case f := <-s.out:
			data, err := encodeFrame(f)
			if err != nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = s.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.close(websocket.StatusGoingAway, "write failed")
				return
			}
		}
	}
}

func (s *Session) dropTopicGauges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, on := range s.subs {
		if on {
			metrics.ActiveSessions.WithLabelValues(topic).Dec()
		}
	}
	s.subs = map[string]bool{}
}
