package ws

import (
	"testing"
	"time"

	"marketpulse/internal/config"
)

func TestParseClientFrame(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    clientFrame
		wantErr bool
	}{
		{
			"object form",
			`{"type":"subscribe","topic":"market-data","symbols":["BTC/USDT"]}`,
			clientFrame{Type: frameSubscribe, Topic: "market-data", Symbols: []string{"BTC/USDT"}},
			false,
		},
		{
			"string form",
			`subscribe:["BTC/USDT","ETH/USDT"]`,
			clientFrame{Type: frameSubscribe, Symbols: []string{"BTC/USDT", "ETH/USDT"}},
			false,
		},
		{"string form bad payload", `subscribe:not json`, clientFrame{}, true},
		{"garbage", `]][[`, clientFrame{}, true},
	}
	for _, tt := range tests {
		got, err := parseClientFrame([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil {
			continue
		}
		if got.Type != tt.want.Type || got.Topic != tt.want.Topic || len(got.Symbols) != len(tt.want.Symbols) {
			t.Fatalf("%s: frame = %+v, want %+v", tt.name, got, tt.want)
		}
		for i, sym := range tt.want.Symbols {
			if got.Symbols[i] != sym {
				t.Fatalf("%s: symbols = %v, want %v", tt.name, got.Symbols, tt.want.Symbols)
			}
		}
	}
}

func priceSession(t *testing.T) (*Session, *time.Timer) {
	t.Helper()
	s := newSession(nil, TopicPrices, config.DeliveryConfig{}, nil)
	wake := time.NewTimer(time.Hour)
	t.Cleanup(func() { wake.Stop() })
	return s, wake
}

func nextFrame(t *testing.T, s *Session) serverFrame {
	t.Helper()
	select {
	case f := <-s.out:
		return f
	default:
		t.Fatalf("no frame buffered")
		return serverFrame{}
	}
}

func TestSubscribeStringFormFiltersPrices(t *testing.T) {
	s, wake := priceSession(t)

	f, err := parseClientFrame([]byte(`subscribe:["BTC/USDT","ETH/USDT"]`))
	if err != nil {
		t.Fatalf("parseClientFrame: %v", err)
	}
	s.handleClientFrame(f, wake)

	if got := nextFrame(t, s); got.Type != frameSubscribed || got.Topic != TopicPrices {
		t.Fatalf("reply = %+v, want subscribed to prices", got)
	}
	if !s.subscribedTo(TopicPrices) {
		t.Fatalf("session not subscribed to prices")
	}
	if !s.wantsSymbol("BTC/USDT") || s.wantsSymbol("SOL/USDT") {
		t.Fatalf("symbol filter not applied")
	}

	ts := time.Unix(1700000000, 0)
	s.HandleTicks(map[string]float64{
		"BTC/USDT": 65000,
		"ETH/USDT": 3000,
		"SOL/USDT": 150,
	}, ts)

	got := nextFrame(t, s)
	if got.Type != framePriceUpdate || got.Topic != TopicPrices {
		t.Fatalf("frame = %+v, want a price_update", got)
	}
	if got.Timestamp != ts.UnixMilli() {
		t.Fatalf("timestamp = %d, want %d", got.Timestamp, ts.UnixMilli())
	}
	if len(got.Prices) != 2 || got.Prices["BTC/USDT"] != 65000 || got.Prices["ETH/USDT"] != 3000 {
		t.Fatalf("prices = %v, want the two subscribed symbols in one map", got.Prices)
	}
}

func TestHandleTicksConsolidatesWithoutFilter(t *testing.T) {
	s, _ := priceSession(t)

	s.HandleTicks(map[string]float64{"BTC/USDT": 65000, "ETH/USDT": 3000}, time.Unix(1700000000, 0))

	got := nextFrame(t, s)
	if len(got.Prices) != 2 {
		t.Fatalf("prices = %v, want both symbols in one frame", got.Prices)
	}
	select {
	case extra := <-s.out:
		t.Fatalf("unexpected second frame %+v", extra)
	default:
	}
}
