package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"commodus/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestCreateCoin(t *testing.T) {
	var captured createRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/coins" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, `{"txHash":"0xtx"}`)
	}))
	defer srv.Close()

	c := New(Config{APIBase: srv.URL, Logger: testLogger()})
	tx, err := c.CreateCoin(context.Background(), domain.CreateCoinParams{
		Name:            "Maximus",
		Symbol:          "MAX",
		MetadataURI:     "ipfs://QmHash",
		PayoutRecipient: "0x85F0337c410D6179B7dC8c3E0e329483a89C3c6B",
	})
	if err != nil {
		t.Fatal(err)
	}
	if tx != "0xtx" {
		t.Errorf("unexpected tx hash: %q", tx)
	}
	if captured.Symbol != "MAX" || captured.URI != "ipfs://QmHash" {
		t.Errorf("unexpected request: %+v", captured)
	}
}

func TestTradeCoin_LowercasesDirection(t *testing.T) {
	var captured tradeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/trades" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, `{"txHash":"0xtrade"}`)
	}))
	defer srv.Close()

	c := New(Config{APIBase: srv.URL, Logger: testLogger()})
	_, err := c.TradeCoin(context.Background(), domain.TradeCoinParams{
		Direction: domain.DirectionSell,
		Target:    "0xd89c4c827c152438a09294E7B299aD628c5aadD7",
		Recipient: "0x85F0337c410D6179B7dC8c3E0e329483a89C3c6B",
		Size:      "0.5",
	})
	if err != nil {
		t.Fatal(err)
	}
	if captured.Direction != "sell" {
		t.Errorf("direction should be lowercased, got %q", captured.Direction)
	}
}

func TestWaitReceipt_ConfirmsAfterPending(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			fmt.Fprint(w, `{"status":"pending"}`)
			return
		}
		fmt.Fprint(w, `{"status":"confirmed","contractAddress":"0xcoin"}`)
	}))
	defer srv.Close()

	c := New(Config{
		APIBase:         srv.URL,
		ReceiptInterval: 10 * time.Millisecond,
		ReceiptTimeout:  time.Second,
		Logger:          testLogger(),
	})
	addr, err := c.WaitReceipt(context.Background(), "0xtx")
	if err != nil {
		t.Fatal(err)
	}
	if addr != "0xcoin" {
		t.Errorf("unexpected contract address: %q", addr)
	}
	if calls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", calls.Load())
	}
}

func TestWaitReceipt_TimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"pending"}`)
	}))
	defer srv.Close()

	c := New(Config{
		APIBase:         srv.URL,
		ReceiptInterval: 10 * time.Millisecond,
		ReceiptTimeout:  50 * time.Millisecond,
		Logger:          testLogger(),
	})
	if _, err := c.WaitReceipt(context.Background(), "0xtx"); err == nil {
		t.Error("eternally pending receipt must time out, not hang")
	}
}

func TestWaitReceipt_Reverted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"failed"}`)
	}))
	defer srv.Close()

	c := New(Config{
		APIBase:         srv.URL,
		ReceiptInterval: 10 * time.Millisecond,
		ReceiptTimeout:  time.Second,
		Logger:          testLogger(),
	})
	if _, err := c.WaitReceipt(context.Background(), "0xtx"); err == nil {
		t.Error("reverted transaction should error")
	}
}
