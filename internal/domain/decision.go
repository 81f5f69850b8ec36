package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is the intent the classifier assigned to an inbound cast.
type Action string

const (
	ActionChat   Action = "CHAT"
	ActionCreate Action = "CREATE"
	ActionTrade  Action = "TRADE"
)

// Direction is the side of a trade.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Decision is the classifier's verdict for one inbound event. It is a sealed
// union: exactly one of ChatDecision, CreateDecision or TradeDecision.
type Decision interface {
	Action() Action
	ReplyText() string

	sealed()
}

// ChatDecision replies in-thread and nothing else.
type ChatDecision struct {
	Reply string
}

func (ChatDecision) Action() Action      { return ActionChat }
func (d ChatDecision) ReplyText() string { return d.Reply }
func (ChatDecision) sealed()             {}

// CreateDecision mints a new token for the author.
type CreateDecision struct {
	Reply       string
	Name        string
	Symbol      string
	Description string
}

func (CreateDecision) Action() Action      { return ActionCreate }
func (d CreateDecision) ReplyText() string { return d.Reply }
func (CreateDecision) sealed()             {}

// TradeDecision buys or sells an existing token.
type TradeDecision struct {
	Reply        string
	TokenAddress string
	Size         string
	Direction    Direction
}

func (TradeDecision) Action() Action      { return ActionTrade }
func (d TradeDecision) ReplyText() string { return d.Reply }
func (TradeDecision) sealed()             {}

// rawDecision is the loose wire shape the model returns. DecodeDecision
// narrows it into exactly one variant or fails.
type rawDecision struct {
	Action       string `json:"action"`
	Reply        string `json:"reply"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Description  string `json:"description"`
	TokenAddress string `json:"tokenAddress"`
	Size         string `json:"size"`
	Direction    string `json:"direction"`
}

// DecodeDecision parses model output into a Decision. Any payload that is not
// exactly one of CHAT/CREATE/TRADE with all of its required fields fails with
// ErrSchemaMismatch; there is no silent default.
func DecodeDecision(data []byte) (Decision, error) {
	var raw rawDecision
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if raw.Reply == "" {
		return nil, fmt.Errorf("%w: missing reply", ErrSchemaMismatch)
	}

	switch Action(raw.Action) {
	case ActionChat:
		return ChatDecision{Reply: raw.Reply}, nil

	case ActionCreate:
		if raw.Name == "" || raw.Symbol == "" || raw.Description == "" {
			return nil, fmt.Errorf("%w: CREATE requires name, symbol and description", ErrSchemaMismatch)
		}
		return CreateDecision{
			Reply:       raw.Reply,
			Name:        raw.Name,
			Symbol:      raw.Symbol,
			Description: raw.Description,
		}, nil

	case ActionTrade:
		dir := Direction(strings.ToUpper(raw.Direction))
		if dir != DirectionBuy && dir != DirectionSell {
			return nil, fmt.Errorf("%w: TRADE direction must be BUY or SELL", ErrSchemaMismatch)
		}
		if raw.TokenAddress == "" || raw.Size == "" {
			return nil, fmt.Errorf("%w: TRADE requires tokenAddress and size", ErrSchemaMismatch)
		}
		return TradeDecision{
			Reply:        raw.Reply,
			TokenAddress: raw.TokenAddress,
			Size:         raw.Size,
			Direction:    dir,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrSchemaMismatch, raw.Action)
	}
}
