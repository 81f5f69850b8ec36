package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"commodus/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakePublisher records every cast it is asked to publish.
type fakePublisher struct {
	casts []publishedCast
	err   error
}

type publishedCast struct {
	text, parent, embed string
}

func (f *fakePublisher) PublishCast(_ context.Context, text, parent, embed string) (domain.CastRef, error) {
	if f.err != nil {
		return domain.CastRef{}, f.err
	}
	f.casts = append(f.casts, publishedCast{text, parent, embed})
	return domain.CastRef{Hash: "0xcast"}, nil
}

type fakePinner struct {
	uri   string
	err   error
	calls int
}

func (f *fakePinner) PinMetadata(context.Context, string, string, string) (string, error) {
	f.calls++
	return f.uri, f.err
}

type fakeTokens struct {
	createTx, tradeTx, coinAddr   string
	createErr, tradeErr, waitErr  error
	creates, trades, waits        int
}

func (f *fakeTokens) CreateCoin(context.Context, domain.CreateCoinParams) (string, error) {
	f.creates++
	return f.createTx, f.createErr
}

func (f *fakeTokens) TradeCoin(context.Context, domain.TradeCoinParams) (string, error) {
	f.trades++
	return f.tradeTx, f.tradeErr
}

func (f *fakeTokens) WaitReceipt(context.Context, string) (string, error) {
	f.waits++
	return f.coinAddr, f.waitErr
}

func createTask() domain.Task {
	return domain.Task{
		ID:              "task-1",
		Type:            domain.TaskCreate,
		Name:            "Maximus",
		Symbol:          "MAX",
		Description:     "gladiator",
		Image:           "https://img.example/m.png",
		VerifiedAddress: "0x85F0337c410D6179B7dC8c3E0e329483a89C3c6B",
		Reply:           "Worthy, citizen.",
		Parent:          "0xparent",
	}
}

func tradeTask() domain.Task {
	return domain.Task{
		ID:              "task-2",
		Type:            domain.TaskTrade,
		TokenAddress:    "0xd89c4c827c152438a09294E7B299aD628c5aadD7",
		Size:            "0.5",
		Direction:       domain.DirectionSell,
		VerifiedAddress: "0x85F0337c410D6179B7dC8c3E0e329483a89C3c6B",
		Reply:           "Sold.",
		Parent:          "0xparent",
	}
}

func newTestWorker(pub *fakePublisher, pin *fakePinner, tok *fakeTokens) *Worker {
	return New(Config{
		Secret:    "shh",
		Publisher: pub,
		Pinner:    pin,
		Tokens:    tok,
		Logger:    testLogger(),
	})
}

func TestHandle_BadSecretNoSideEffects(t *testing.T) {
	pub := &fakePublisher{}
	pin := &fakePinner{uri: "ipfs://x"}
	tok := &fakeTokens{}
	w := newTestWorker(pub, pin, tok)

	res, err := w.Handle(context.Background(), "wrong", createTask())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if res.Success {
		t.Error("rejected task must not report success")
	}
	if pin.calls != 0 || tok.creates != 0 || len(pub.casts) != 0 {
		t.Error("rejected task must produce zero side effects")
	}
}

func TestHandle_EmptySecretRejected(t *testing.T) {
	w := New(Config{Secret: "", Publisher: &fakePublisher{}, Pinner: &fakePinner{}, Tokens: &fakeTokens{}, Logger: testLogger()})
	_, err := w.Handle(context.Background(), "", createTask())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("empty configured secret must never authenticate, got %v", err)
	}
}

func TestHandle_CreateSuccess(t *testing.T) {
	pub := &fakePublisher{}
	pin := &fakePinner{uri: "https://gw.example/ipfs/QmHash"}
	tok := &fakeTokens{createTx: "0xtx", coinAddr: "0xcoin"}
	w := newTestWorker(pub, pin, tok)

	res, err := w.Handle(context.Background(), "shh", createTask())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Detail != "0xcoin" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(pub.casts) != 1 {
		t.Fatalf("exactly one success notice expected, got %d", len(pub.casts))
	}
	cast := pub.casts[0]
	if cast.text != "Worthy, citizen." || cast.parent != "0xparent" {
		t.Errorf("unexpected cast: %+v", cast)
	}
	if !strings.Contains(cast.embed, "0xcoin") {
		t.Errorf("success notice must reference the coin address, got %q", cast.embed)
	}
	if pin.calls != 1 || tok.creates != 1 || tok.waits != 1 {
		t.Errorf("pipeline steps: pin=%d create=%d wait=%d", pin.calls, tok.creates, tok.waits)
	}
}

func TestHandle_CreatePinFailure(t *testing.T) {
	pub := &fakePublisher{}
	pin := &fakePinner{err: fmt.Errorf("pinata down")}
	tok := &fakeTokens{}
	w := newTestWorker(pub, pin, tok)

	res, err := w.Handle(context.Background(), "shh", createTask())
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("pin failure must fail the task")
	}
	if tok.creates != 0 {
		t.Error("no transaction may be submitted after a pin failure")
	}
	if len(pub.casts) != 1 {
		t.Fatalf("exactly one failure notice expected, got %d", len(pub.casts))
	}
	if !strings.Contains(pub.casts[0].text, "Failed to create coin") {
		t.Errorf("failure notice wording: %q", pub.casts[0].text)
	}
}

func TestHandle_CreateReceiptTimeoutFails(t *testing.T) {
	pub := &fakePublisher{}
	pin := &fakePinner{uri: "ipfs://x"}
	tok := &fakeTokens{createTx: "0xtx", waitErr: fmt.Errorf("timed out waiting for receipt")}
	w := newTestWorker(pub, pin, tok)

	res, _ := w.Handle(context.Background(), "shh", createTask())
	if res.Success {
		t.Error("receipt timeout must fail the task")
	}
	if len(pub.casts) != 1 {
		t.Errorf("exactly one failure notice expected, got %d", len(pub.casts))
	}
}

func TestHandle_CreateValidationFailsBeforePin(t *testing.T) {
	pub := &fakePublisher{}
	pin := &fakePinner{uri: "ipfs://x"}
	tok := &fakeTokens{}
	w := newTestWorker(pub, pin, tok)

	task := createTask()
	task.Symbol = ""
	res, err := w.Handle(context.Background(), "shh", task)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("invalid task must fail")
	}
	if pin.calls != 0 {
		t.Error("validation must run before any external call")
	}
	if len(pub.casts) != 1 {
		t.Errorf("invalid task still owes the user one failure notice, got %d", len(pub.casts))
	}
}

func TestHandle_TradeSuccess(t *testing.T) {
	pub := &fakePublisher{}
	tok := &fakeTokens{tradeTx: "0xtrade"}
	w := newTestWorker(pub, &fakePinner{}, tok)

	res, err := w.Handle(context.Background(), "shh", tradeTask())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Detail != "0xtrade" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(pub.casts) != 1 {
		t.Fatalf("exactly one success notice expected, got %d", len(pub.casts))
	}
	if !strings.Contains(pub.casts[0].text, "basescan.org/tx/0xtrade") {
		t.Errorf("success notice must reference the transaction: %q", pub.casts[0].text)
	}
}

func TestHandle_TradeFailurePublishesDirectionAndError(t *testing.T) {
	pub := &fakePublisher{}
	tok := &fakeTokens{tradeErr: fmt.Errorf("insufficient balance")}
	w := newTestWorker(pub, &fakePinner{}, tok)

	res, err := w.Handle(context.Background(), "shh", tradeTask())
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("trade failure must fail the task")
	}
	if res.Err == "" {
		t.Error("result should carry the error message")
	}
	if len(pub.casts) != 1 {
		t.Fatalf("exactly one failure notice expected, got %d", len(pub.casts))
	}
	notice := pub.casts[0].text
	if !strings.Contains(notice, "sell") || !strings.Contains(notice, "insufficient balance") {
		t.Errorf("failure notice must name the direction and the error: %q", notice)
	}
}

func TestHandle_UnknownTypeRejected(t *testing.T) {
	pub := &fakePublisher{}
	w := newTestWorker(pub, &fakePinner{}, &fakeTokens{})

	task := createTask()
	task.Type = "MEMORY"
	res, err := w.Handle(context.Background(), "shh", task)
	if err == nil {
		t.Error("unknown task type should error")
	}
	if res.Success {
		t.Error("unknown task type must not succeed")
	}
	if len(pub.casts) != 0 {
		t.Error("unknown task type publishes nothing")
	}
}
