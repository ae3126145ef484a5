package ws

import (
	"bytes"
	"encoding/json"

	"marketpulse/internal/models"
	"marketpulse/internal/store"
)

// Topic names. Each topic has its own endpoint; a session is born subscribed
// to the endpoint's topic and may adjust with subscribe/unsubscribe frames.
const (
	TopicNotifications = "notifications"
	TopicPrices        = "prices"
	TopicMarketData    = "market-data"
)

func validTopic(t string) bool {
	switch t {
	case TopicNotifications, TopicPrices, TopicMarketData:
		return true
	}
	return false
}

// clientFrame is anything the browser sends us.
type clientFrame struct {
	Type    string   `json:"type"`
	Topic   string   `json:"topic,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
	// ID references a notification for ack, voice_done, and dismiss.
	ID string `json:"id,omitempty"`
}

// Client frame types.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	framePing        = "ping"
	frameAck         = "ack"
	frameVoiceDone   = "voice_done"
	frameDismiss     = "dismiss"
)

// parseClientFrame decodes an inbound text frame. Besides the JSON object
// form, the prices endpoint accepts the compact string form
// "subscribe:<json array of symbols>".
func parseClientFrame(data []byte) (clientFrame, error) {
	if rest, ok := bytes.CutPrefix(data, []byte(frameSubscribe+":")); ok {
		var syms []string
		if err := json.Unmarshal(rest, &syms); err != nil {
			return clientFrame{}, err
		}
		return clientFrame{Type: frameSubscribe, Symbols: syms}, nil
	}
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return clientFrame{}, err
	}
	return f, nil
}

// serverFrame is the envelope for everything we push. Exactly one payload
// group is set per type.
type serverFrame struct {
	Type         string               `json:"type"`
	Topic        string               `json:"topic,omitempty"`
	SessionID    string               `json:"session_id,omitempty"`
	Message      string               `json:"message,omitempty"`
	Event        *store.Event         `json:"event,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
	Prices       map[string]float64   `json:"prices,omitempty"`
	Timestamp    int64                `json:"timestamp,omitempty"`
	Candles      []models.Candle      `json:"candles,omitempty"`
	Symbol       string               `json:"symbol,omitempty"`
	Timeframe    string               `json:"timeframe,omitempty"`
}

// Server frame types.
const (
	frameConnected    = "connected"
	frameSubscribed   = "subscribed"
	frameUnsubscribed = "unsubscribed"
	framePong         = "pong"
	frameEvent        = "notification_event"
	framePresent      = "present"
	framePriceUpdate  = "price_update"
	frameOHLCVUpdate  = "ohlcv_update"
	frameLagging      = "lagging"
	frameError        = "error"
)

func (f serverFrame) critical() bool {
	switch f.Type {
	case framePresent:
		return f.Notification != nil && f.Notification.Priority == models.PriorityCritical
	case frameEvent:
		return f.Event != nil && f.Event.Notification.Priority == models.PriorityCritical
	}
	return false
}

func encodeFrame(f serverFrame) ([]byte, error) {
	return json.Marshal(f)
}
