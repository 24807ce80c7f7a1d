package models

import "time"

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

type RefreshToken struct {
	ID        int64
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

type OrderType string

const (
	OrderTypeBuy  OrderType = "BUY"
	OrderTypeSell OrderType = "SELL"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusExecuting OrderStatus = "EXECUTING"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

type Holding struct {
	ID           int64   `json:"id"`
	UserID       int64   `json:"user_id"`
	Symbol       string  `json:"symbol"`
	Quantity     int64   `json:"quantity"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
}

type Position struct {
	ID            int64   `json:"id"`
	UserID        int64   `json:"user_id"`
	Symbol        string  `json:"symbol"`
	Quantity      int64   `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

type Order struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"user_id"`
	Symbol      string      `json:"symbol"`
	OrderType   OrderType   `json:"order_type"`
	Quantity    int64       `json:"quantity"`
	Price       float64     `json:"price"`
	Status      OrderStatus `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
	RealizedPnL float64     `json:"realized_pnl"`
}

// AuthEvent is published to the audit queue on register, login and logout.
type AuthEvent struct {
	UserID int64     `json:"user_id"`
	Email  string    `json:"email"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}
