package domain

// InboundEvent is one webhook cast event, immutable for the duration of the
// request that carries it.
type InboundEvent struct {
	Text            string
	ThreadHash      string
	ParentHash      string
	AuthorFID       int64
	AuthorUsername  string
	VerifiedAddress string  // empty when the author has no verified address
	Score           float64 // reputation score; 0 when absent
	ImageURL        string  // first embedded image, if any
}

// Turn is a single prior message in a cast conversation.
type Turn struct {
	Author string
	Text   string
}

// CastRef identifies a published cast.
type CastRef struct {
	Hash string `json:"hash"`
}
