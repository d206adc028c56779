package orders

import (
	"github.com/shopspring/decimal"
	"time"
)

type Product struct {
	ProductID   int64
	SupplierID  int64
	Name        string
	Description string
	Price       decimal.Decimal
	Image       string
	Active      bool
}

type Order struct {
	OrderID        int64
	UserID         int64
	SupplierID     int64
	Date           time.Time
	DeliveryDate   time.Time
	TotalPrice     decimal.Decimal
	DeliveryStatus Status // lihat status.go
}

// OrderDetail snapshots the product at placement time. Price is the unit price.
type OrderDetail struct {
	OrderDetailID      int64
	OrderID            int64
	ProductID          int64
	ProductName        string
	ProductDescription string
	Quantity           int64
	Price              decimal.Decimal
	LineTotal          decimal.Decimal
}

// OrderSummary is a list row; Counterparty is the supplier company for buyers and the customer company for suppliers.
type OrderSummary struct {
	Order
	Counterparty string
}

type MirrorOperation string

const (
	OpPlaceOrder   MirrorOperation = "place_order"
	OpUpdateStatus MirrorOperation = "update_status"
)

type MirrorFailure struct {
	ID           int64
	OrderID      int64
	Operation    MirrorOperation
	Reason       string
	CreatedAt    time.Time
	ReconciledAt *time.Time
}

type DriftReport struct {
	ID        int64     `json:"id,omitempty"`
	OrderID   int64     `json:"order_id"`
	CheckType string    `json:"check"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"-"`
}
