package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TaskType names the operation a background task carries.
type TaskType string

const (
	TaskCreate TaskType = "CREATE"
	TaskTrade  TaskType = "TRADE"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Task is the serializable envelope handed from the webhook entry point to
// the task worker. Created once, consumed exactly once; there is no retry
// state and no dedup key (the ID is a correlation aid for logs only).
type Task struct {
	ID   string   `json:"id,omitempty"`
	Type TaskType `json:"type"`

	// CREATE fields.
	Name        string `json:"name,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`

	// TRADE fields.
	TokenAddress string    `json:"tokenAddress,omitempty"`
	Size         string    `json:"size,omitempty"`
	Direction    Direction `json:"direction,omitempty"`

	// Routing metadata.
	FID             int64  `json:"fid,omitempty"`
	VerifiedAddress string `json:"verifiedAddress"`
	Reply           string `json:"reply"`
	Parent          string `json:"parent"`
}

// Validate checks the variant-specific fields for the task's type.
func (t Task) Validate() error {
	if t.Parent == "" {
		return &ValidationError{Field: "parent", Reason: "required"}
	}
	if !addressPattern.MatchString(t.VerifiedAddress) {
		return &ValidationError{Field: "verifiedAddress", Reason: "must be a 0x-prefixed 40-hex address"}
	}

	switch t.Type {
	case TaskCreate:
		if t.Name == "" {
			return &ValidationError{Field: "name", Reason: "required"}
		}
		if t.Symbol == "" {
			return &ValidationError{Field: "symbol", Reason: "required"}
		}
		if t.Description == "" {
			return &ValidationError{Field: "description", Reason: "required"}
		}
		if !strings.HasPrefix(t.Image, "http://") && !strings.HasPrefix(t.Image, "https://") {
			return &ValidationError{Field: "image", Reason: "must be a resolvable URL"}
		}
		return nil

	case TaskTrade:
		if !addressPattern.MatchString(t.TokenAddress) {
			return &ValidationError{Field: "tokenAddress", Reason: "must be a 0x-prefixed 40-hex address"}
		}
		if t.Direction != DirectionBuy && t.Direction != DirectionSell {
			return &ValidationError{Field: "direction", Reason: "must be BUY or SELL"}
		}
		size, err := strconv.ParseFloat(t.Size, 64)
		if err != nil || size <= 0 {
			return &ValidationError{Field: "size", Reason: "must be a positive number"}
		}
		return nil

	default:
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown task type %q", t.Type)}
	}
}
