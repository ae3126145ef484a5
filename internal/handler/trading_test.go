package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"marketpulse/internal/config"
	"marketpulse/internal/trading"
)

func newTradingAPI(t *testing.T, engineHandler http.HandlerFunc) (*gin.Engine, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(engineHandler)
	t.Cleanup(srv.Close)

	engine := gin.New()
	// Keep escaped slashes in position IDs intact through routing.
	engine.UseRawPath = true
	(&TradingHandler{
		Client: trading.NewClient(config.TradingConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}),
	}).Register(engine)
	return engine, srv
}

func TestOpenPositionValidation(t *testing.T) {
	engine, _ := newTradingAPI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("invalid request reached the engine: %s %s", r.Method, r.URL.Path)
	})

	tests := []struct {
		name string
		body string
	}{
		{"bad symbol", `{"symbol":"BTCUSDT","side":"long","amount":"1"}`},
		{"bad side", `{"symbol":"BTC/USDT","side":"sideways","amount":"1"}`},
		{"zero amount", `{"symbol":"BTC/USDT","side":"long","amount":"0"}`},
		{"negative amount", `{"symbol":"BTC/USDT","side":"long","amount":"-1"}`},
		{"stop percent out of range", `{"symbol":"BTC/USDT","side":"long","amount":"1","stop_loss_percent":150}`},
	}
	for _, tt := range tests {
		w, parsed := doJSON(t, engine, http.MethodPost, "/trading/positions", tt.body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", tt.name, w.Code)
		}
		if parsed["error_code"] != CodeInvalidInput {
			t.Fatalf("%s: error_code = %v", tt.name, parsed["error_code"])
		}
	}
}

func TestOpenPositionProxies(t *testing.T) {
	engine, _ := newTradingAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/positions" {
			t.Errorf("unexpected engine call %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id":"p1","symbol":"BTC/USDT","side":"long"}`))
	})

	w, parsed := doJSON(t, engine, http.MethodPost, "/trading/positions",
		`{"symbol":"btc/usdt","side":"long","amount":"0.25","stop_loss_percent":5}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("open = %d body %s", w.Code, w.Body.String())
	}
	if parsed["id"] != "p1" {
		t.Fatalf("position = %v", parsed)
	}
}

func TestClosePositionEncodedID(t *testing.T) {
	var enginePath string
	engine, _ := newTradingAPI(t, func(w http.ResponseWriter, r *http.Request) {
		enginePath = r.URL.EscapedPath()
		w.Write([]byte(`{"id":"binance:BTC/USDT:1"}`))
	})

	w, parsed := doJSON(t, engine, http.MethodDelete, "/trading/positions/binance:BTC%2FUSDT:1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("close = %d body %s", w.Code, w.Body.String())
	}
	if parsed["id"] != "binance:BTC/USDT:1" {
		t.Fatalf("position = %v", parsed)
	}
	if enginePath != "/positions/binance:BTC%2FUSDT:1/close" {
		t.Fatalf("engine path = %q, want the id re-escaped", enginePath)
	}
}

func TestInsufficientBalanceMapsTo409(t *testing.T) {
	engine, _ := newTradingAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error_code":"insufficient_balance","message":"balance too low"}`))
	})

	w, parsed := doJSON(t, engine, http.MethodPost, "/trading/positions",
		`{"symbol":"BTC/USDT","side":"long","amount":"100"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if parsed["error_code"] != CodeInsufficientBalance {
		t.Fatalf("error_code = %v", parsed["error_code"])
	}
}

func TestEngineDownMapsTo503(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	(&TradingHandler{
		Client: trading.NewClient(config.TradingConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}),
	}).Register(engine)

	w, parsed := doJSON(t, engine, http.MethodGet, "/trading/balance", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if parsed["error_code"] != CodeUpstreamUnavailable {
		t.Fatalf("error_code = %v", parsed["error_code"])
	}
}

func TestStopLossValidation(t *testing.T) {
	engine, _ := newTradingAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"p1"}`))
	})

	w, _ := doJSON(t, engine, http.MethodPatch, "/trading/positions/p1/stop-loss", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty stop request = %d, want 400", w.Code)
	}

	w, _ = doJSON(t, engine, http.MethodPatch, "/trading/positions/p1/stop-loss", `{"stop_loss":-5}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative stop = %d, want 400", w.Code)
	}

	w, _ = doJSON(t, engine, http.MethodPatch, "/trading/positions/p1/stop-loss", `{"stop_loss_percent":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("valid stop = %d body %s", w.Code, w.Body.String())
	}
}

func TestTrailingStopValidation(t *testing.T) {
	engine, _ := newTradingAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"p1"}`))
	})

	for _, body := range []string{`{"percent":0}`, `{"percent":101}`} {
		w, _ := doJSON(t, engine, http.MethodPatch, "/trading/positions/p1/trailing-stop", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s = %d, want 400", body, w.Code)
		}
	}

	w, _ := doJSON(t, engine, http.MethodPatch, "/trading/positions/p1/trailing-stop", `{"percent":2.5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("valid trailing stop = %d", w.Code)
	}
}
