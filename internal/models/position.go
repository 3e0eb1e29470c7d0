package models

import "time"

// Side is a position's direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Status is a position's lifecycle state.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// SizeMode selects how CreatePositionRequest.SizeValue is interpreted.
type SizeMode string

const (
	SizeModeUSDT SizeMode = "USDT"
	SizeModeQty  SizeMode = "QTY"
)

// EntryType selects whether a position opens at the current mark price or
// at a user-specified limit price.
type EntryType string

const (
	EntryTypeMarket EntryType = "MARKET"
	EntryTypeLimit  EntryType = "LIMIT"
)

// SLTPMode selects whether CreatePositionRequest.SL/TP are absolute prices
// or percentages off the entry price.
type SLTPMode string

const (
	SLTPModePrice   SLTPMode = "PRICE"
	SLTPModePercent SLTPMode = "PERCENT"
)

// Position is the central entity: a virtual LONG/SHORT position against a
// live mark-price feed.
type Position struct {
	ID         int64   `json:"id" db:"id"`
	Symbol     string  `json:"symbol" db:"symbol"`
	Side       Side    `json:"side" db:"side"`
	Qty        float64 `json:"qty" db:"qty"`
	EntryPrice float64 `json:"entryPrice" db:"entry_price"`
	EntryTime  int64   `json:"entryTime" db:"entry_time"`
	Leverage   int     `json:"leverage" db:"leverage"`
	FeesOpen   float64 `json:"feesOpen" db:"fees_open"`
	Notes      string  `json:"notes,omitempty" db:"notes"`

	SL *float64 `json:"sl" db:"sl"`
	TP *float64 `json:"tp" db:"tp"`

	Status Status `json:"status" db:"status"`

	ClosePrice  *float64 `json:"closePrice" db:"close_price"`
	CloseTime   *int64   `json:"closeTime" db:"close_time"`
	FeesClose   *float64 `json:"feesClose" db:"fees_close"`
	RealizedPnl *float64 `json:"realizedPnl" db:"realized_pnl"`
	FundingPnl  *float64 `json:"fundingPnl" db:"funding_pnl"`
}

// IsOpen reports whether the position is still live.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// CreatePositionRequest is the Broker.CreatePosition input.
type CreatePositionRequest struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	SizeMode   SizeMode  `json:"sizeMode"`
	SizeValue  float64   `json:"sizeValue"`
	Leverage   int       `json:"leverage"`
	EntryType  EntryType `json:"entryType"`
	LimitPrice *float64  `json:"limitPrice,omitempty"`
	SL         *float64  `json:"sl,omitempty"`
	TP         *float64  `json:"tp,omitempty"`
	SLMode     SLTPMode  `json:"slMode,omitempty"`
	TPMode     SLTPMode  `json:"tpMode,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

// UpdateSLTPRequest is the Broker.UpdateSLTP input. Nil fields are left
// untouched.
type UpdateSLTPRequest struct {
	SL *float64
	TP *float64
}

// Fill is an append-only audit record of entry/exit economics.
type Fill struct {
	ID         int64     `json:"id" db:"id"`
	PositionID int64     `json:"positionId" db:"position_id"`
	Type       FillType  `json:"type" db:"type"`
	Price      float64   `json:"price" db:"price"`
	Qty        float64   `json:"qty" db:"qty"`
	Fee        float64   `json:"fee" db:"fee"`
	Ts         int64     `json:"ts" db:"ts"`
}

// FillType enumerates the kinds of fill.
type FillType string

const (
	FillTypeOpen    FillType = "OPEN"
	FillTypeClose   FillType = "CLOSE"
	FillTypePartial FillType = "PARTIAL"
)

// Event is an append-only audit log entry for a position's state
// transitions. Events are historical and never mutated.
type Event struct {
	ID         int64     `json:"id" db:"id"`
	PositionID int64     `json:"positionId" db:"position_id"`
	Event      EventType `json:"event" db:"event"`
	Payload    string    `json:"payload" db:"payload"` // structured JSON blob
	Ts         int64     `json:"ts" db:"ts"`
}

// EventType enumerates position lifecycle events.
type EventType string

const (
	EventPositionCreated EventType = "POSITION_CREATED"
	EventSLTriggered     EventType = "SL_TRIGGERED"
	EventTPTriggered     EventType = "TP_TRIGGERED"
	EventManualClose     EventType = "MANUAL_CLOSE"
	EventSLUpdated       EventType = "SL_UPDATED"
	EventTPUpdated       EventType = "TP_UPDATED"
)

// TriggerExecuted describes a closure produced by the trigger engine, the
// payload relayed verbatim to LiveStream clients.
type TriggerExecuted struct {
	PositionID  int64     `json:"positionId"`
	Event       EventType `json:"event"`
	ClosePrice  float64   `json:"closePrice"`
	RealizedPnl float64   `json:"realizedPnl"`
	Ts          time.Time `json:"ts"`
}

// PriceUpdate is emitted by the trigger engine on every accepted tick.
type PriceUpdate struct {
	Symbol    string    `json:"symbol"`
	MarkPrice float64   `json:"markPrice"`
	Ts        time.Time `json:"ts"`
}
