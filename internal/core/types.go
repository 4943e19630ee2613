package core

import (
	"context"
	"fmt"
	"time"
)

// PaymentUnit identifies the denomination of a price or transfer amount.
type PaymentUnit string

const (
	UnitETH PaymentUnit = "eth"
	UnitWEI PaymentUnit = "wei"
)

// weiPerETH is the conversion factor between wei and ether.
const weiPerETH = 1e18

// Listing is a single marketplace listing for an asset in a collection.
type Listing struct {
	ListingID string      `json:"listing_id"`
	AssetID   string      `json:"asset_id"`
	Price     float64     `json:"price"`
	Unit      PaymentUnit `json:"unit"`
	Seller    string      `json:"seller"`
}

// NormalizedPrice returns the listing price in ether regardless of the
// listing's payment unit.
func (l Listing) NormalizedPrice() float64 {
	if l.Unit == UnitWEI {
		return l.Price / weiPerETH
	}
	return l.Price
}

// TriggerStatus is the lifecycle state of an auto-buy position.
type TriggerStatus string

const (
	TriggerActive    TriggerStatus = "active"
	TriggerStopped   TriggerStatus = "stopped"
	TriggerFulfilled TriggerStatus = "fulfilled"
	TriggerFailed    TriggerStatus = "failed"
)

// Terminal reports whether no further polling may occur for the status.
func (s TriggerStatus) Terminal() bool {
	return s == TriggerFulfilled || s == TriggerFailed
}

// Fulfillment records the purchase that completed a trigger position.
type Fulfillment struct {
	AssetID string  `json:"asset_id"`
	Price   float64 `json:"price"`
	TxHash  string  `json:"tx_hash"`
}

// TriggerPosition is a one-shot auto-buy intent against a collection.
// Configuration fields are immutable after creation; runtime fields are
// mutated only through the position store.
type TriggerPosition struct {
	ID          string      `json:"id"`
	Collection  string      `json:"collection"`
	MaxPrice    float64     `json:"max_price"`
	Unit        PaymentUnit `json:"unit"`
	MaxRetries  int         `json:"max_retries"`
	StopOnError bool        `json:"stop_on_error"`

	Status        TriggerStatus `json:"status"`
	Attempts      int           `json:"attempts"`
	LastCheckedAt time.Time     `json:"last_checked_at"`
	LastError     string        `json:"last_error,omitempty"`
	Fulfillment   *Fulfillment  `json:"fulfillment,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NormalizedMaxPrice returns the price ceiling in ether regardless of the
// unit it was configured in, so it compares directly against
// Listing.NormalizedPrice.
func (p TriggerPosition) NormalizedMaxPrice() float64 {
	if p.Unit == UnitWEI {
		return p.MaxPrice / weiPerETH
	}
	return p.MaxPrice
}

// AlertDirection selects which threshold crossing fires an alert.
type AlertDirection string

const (
	AlertAbove AlertDirection = "above"
	AlertBelow AlertDirection = "below"
)

// AlertStatus is the lifecycle state of a price alert.
type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertInactive AlertStatus = "inactive"
)

// PriceAlert is a recurring threshold-crossing notification intent.
// Unlike trigger positions, alerts survive their own firing.
type PriceAlert struct {
	ID          string         `json:"id"`
	Collection  string         `json:"collection"`
	Direction   AlertDirection `json:"direction"`
	TargetPrice float64        `json:"target_price"`

	Status          AlertStatus `json:"status"`
	LastCheckedAt   time.Time   `json:"last_checked_at"`
	LastTriggeredAt time.Time   `json:"last_triggered_at,omitempty"`
	LastPrice       float64     `json:"last_price,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// AlertEvent describes a single threshold crossing observed by the
// alert engine.
type AlertEvent struct {
	AlertID    string         `json:"alert_id"`
	Collection string         `json:"collection"`
	Direction  AlertDirection `json:"direction"`
	Target     float64        `json:"target"`
	Price      float64        `json:"price"`
	ObservedAt time.Time      `json:"observed_at"`
}

// TradeEventKind tags entries in the trade audit log.
type TradeEventKind string

const (
	TradeFulfilled TradeEventKind = "fulfilled"
	TradeFailed    TradeEventKind = "failed"
)

// TradeEvent is one line of the append-only trade audit log.
type TradeEvent struct {
	ID         int64          `json:"id,omitempty"`
	PositionID string         `json:"position_id"`
	Collection string         `json:"collection"`
	Kind       TradeEventKind `json:"kind"`
	AssetID    string         `json:"asset_id,omitempty"`
	Price      float64        `json:"price,omitempty"`
	TxHash     string         `json:"tx_hash,omitempty"`
	Error      string         `json:"error,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// TransferStatus reports the submission state of a transfer.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferConfirmed TransferStatus = "confirmed"
	TransferFailed    TransferStatus = "failed"
)

// TransferRequest asks the execution port to pay for a listing.
type TransferRequest struct {
	Destination string      `json:"destination"`
	Amount      float64     `json:"amount"`
	Unit        PaymentUnit `json:"unit"`
	Reference   string      `json:"reference,omitempty"`
}

// TransferReceipt is the execution port's answer to a submission.
type TransferReceipt struct {
	TxHash string         `json:"tx_hash"`
	Status TransferStatus `json:"status"`
}

// MarketDataPort supplies current listings for a collection. Implementations
// may fail with network or rate-limit errors; the engines treat a failure as
// "no data this tick", never as a position failure.
type MarketDataPort interface {
	FetchListings(ctx context.Context, collection string) ([]Listing, error)
}

// ExecutionPort submits purchase transfers. Failures count against a
// position's attempt budget.
type ExecutionPort interface {
	Submit(ctx context.Context, req TransferRequest) (*TransferReceipt, error)
}

// APIError is an HTTP-shaped error from an external service. The status
// code drives retry classification.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}
