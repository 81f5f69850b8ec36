package domain

import (
	"context"
	"time"
)

// Classifier turns an inbound event plus conversation context into a Decision.
type Classifier interface {
	Classify(ctx context.Context, event InboundEvent, history []Turn) (Decision, error)
}

// Summarizer condenses conversation turns into a rolling memory string.
type Summarizer interface {
	Summarize(ctx context.Context, priorMemory string, turns []Turn) (string, error)
}

// Publisher posts a cast in reply to a parent, optionally with an embed URL.
type Publisher interface {
	PublishCast(ctx context.Context, text, parentHash, embedURL string) (CastRef, error)
}

// ConversationSource fetches the prior replies of a cast thread.
type ConversationSource interface {
	Conversation(ctx context.Context, threadHash string) ([]Turn, error)
}

// Pinner uploads token metadata to content-addressed storage and returns a
// retrievable URI.
type Pinner interface {
	PinMetadata(ctx context.Context, name, description, imageURL string) (string, error)
}

// CreateCoinParams are the inputs to a token creation transaction.
type CreateCoinParams struct {
	Name             string
	Symbol           string
	MetadataURI      string
	PayoutRecipient  string
	PlatformReferrer string
}

// TradeCoinParams are the inputs to a token trade transaction.
type TradeCoinParams struct {
	Direction Direction
	Target    string
	Recipient string
	Size      string
}

// TokenService submits token transactions and awaits their confirmation.
type TokenService interface {
	CreateCoin(ctx context.Context, p CreateCoinParams) (txHash string, err error)
	TradeCoin(ctx context.Context, p TradeCoinParams) (txHash string, err error)
	WaitReceipt(ctx context.Context, txHash string) (contractAddress string, err error)
}

// Dispatcher fires a background task at the worker endpoint, best effort.
// The returned bool reports only whether the transport accepted the send.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) bool
}

// Notifier delivers out-of-band operator alerts.
type Notifier interface {
	Alert(ctx context.Context, text string)
}

// User is the per-author conversation state.
type User struct {
	FID          int64
	ThreadID     string // LLM conversation handle
	MessageCount int64
	Memory       string
	MemoryCount  int64 // MessageCount at the last memory refresh
	LastThread   string
	UpdatedAt    time.Time
}

// Conversation maps a cast thread to an LLM conversation handle.
type Conversation struct {
	ThreadHash string
	ThreadID   string
	UpdatedAt  time.Time
}

// Coin records a token this bot created.
type Coin struct {
	FID         int64
	Address     string
	Name        string
	Symbol      string
	Description string
	ParentCast  string
	CreatedAt   time.Time
}

// Store persists conversation state. Increment is atomic at the store level;
// callers never read-modify-write the counter.
type Store interface {
	UpsertUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, fid int64) (*User, error)
	IncrementMessageCount(ctx context.Context, fid int64) (int64, error)
	UpdateMemory(ctx context.Context, fid int64, memory string, atCount int64) error
	UpsertConversation(ctx context.Context, c Conversation) error
	GetConversation(ctx context.Context, threadHash string) (*Conversation, error)
	StoreCoin(ctx context.Context, c Coin) error
	UsersDueForMemoryRefresh(ctx context.Context, threshold int64) ([]User, error)
	Close() error
}
