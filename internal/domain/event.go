package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind tags the payload type of an ingestion event.
type EventKind string

const (
	EventTrade   EventKind = "trade"
	EventConfirm EventKind = "confirm"
)

// Event is a single `(kind, payload)` record pushed into the reconciliation
// queue by a producer. The payload is kept raw until the consumer loop decodes
// it, so a malformed payload is a per-event error rather than a producer
// failure.
type Event struct {
	Kind       EventKind
	Payload    json.RawMessage
	EnqueuedAt time.Time
}

// DecodeTrade strictly decodes a trade payload. It returns ErrDecode (wrapped)
// when the JSON is malformed or a required field is missing or out of range.
func DecodeTrade(payload []byte) (Trade, error) {
	var t Trade
	if err := json.Unmarshal(payload, &t); err != nil {
		return Trade{}, fmt.Errorf("%w: trade payload: %v", ErrDecode, err)
	}
	if err := validateTrade(t); err != nil {
		return Trade{}, fmt.Errorf("%w: trade payload: %v", ErrDecode, err)
	}
	return t, nil
}

// DecodeConfirm strictly decodes a confirm payload, mirroring DecodeTrade.
func DecodeConfirm(payload []byte) (Confirm, error) {
	var c Confirm
	if err := json.Unmarshal(payload, &c); err != nil {
		return Confirm{}, fmt.Errorf("%w: confirm payload: %v", ErrDecode, err)
	}
	if err := validateConfirm(c); err != nil {
		return Confirm{}, fmt.Errorf("%w: confirm payload: %v", ErrDecode, err)
	}
	return c, nil
}

func validateTrade(t Trade) error {
	switch {
	case t.TradeID == "":
		return fmt.Errorf("missing trade_id")
	case !t.Side.Valid():
		return fmt.Errorf("invalid side %q", t.Side)
	case t.Qty <= 0:
		return fmt.Errorf("qty must be > 0, got %d", t.Qty)
	case t.Price <= 0:
		return fmt.Errorf("price must be > 0, got %g", t.Price)
	case t.ExecTime.IsZero():
		return fmt.Errorf("missing exec_time")
	}
	return nil
}

func validateConfirm(c Confirm) error {
	switch {
	case c.TradeID == "":
		return fmt.Errorf("missing trade_id")
	case !c.Side.Valid():
		return fmt.Errorf("invalid side %q", c.Side)
	case c.Qty <= 0:
		return fmt.Errorf("qty must be > 0, got %d", c.Qty)
	case c.Price <= 0:
		return fmt.Errorf("price must be > 0, got %g", c.Price)
	case c.ConfirmTime.IsZero():
		return fmt.Errorf("missing confirm_time")
	}
	return nil
}
