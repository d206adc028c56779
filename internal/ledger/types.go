package ledger

import (
	"crypto/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"math/big"
	"time"
)

// Identity is the ledger account a write is sent from. Key nil means the node holds the key (unlocked account).
type Identity struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// Line is one order line as the contract stores it. Price is the line total in minor units.
type Line struct {
	OrderID            int64
	ProductID          int64
	ProductName        string
	ProductDescription string
	Quantity           int64
	Price              int64
}

type PlaceOrderInput struct {
	SupplierID   int64
	DeliveryDate time.Time
	TotalPrice   int64 // minor units
	Lines        []Line
}

// Order is the ledger's read projection of an order.
type Order struct {
	OrderID      int64
	Buyer        common.Address
	SupplierID   int64
	DeliveryDate time.Time
	TotalPrice   int64
	Status       uint8
}

// orderDetail mirrors the contract's OrderDetail tuple; field names must match the abi component names.
type orderDetail struct {
	OrderID            *big.Int `abi:"orderID"`
	ProductID          *big.Int `abi:"productID"`
	ProductName        string   `abi:"productName"`
	ProductDescription string   `abi:"productDescription"`
	Quantity           *big.Int `abi:"quantity"`
	Price              *big.Int `abi:"price"`
}

func toTuples(lines []Line) []orderDetail {
	out := make([]orderDetail, 0, len(lines))
	for _, l := range lines {
		out = append(out, orderDetail{
			OrderID:            big.NewInt(l.OrderID),
			ProductID:          big.NewInt(l.ProductID),
			ProductName:        l.ProductName,
			ProductDescription: l.ProductDescription,
			Quantity:           big.NewInt(l.Quantity),
			Price:              big.NewInt(l.Price),
		})
	}
	return out
}

func fromTuples(ts []orderDetail) []Line {
	out := make([]Line, 0, len(ts))
	for _, t := range ts {
		out = append(out, Line{
			OrderID:            t.OrderID.Int64(),
			ProductID:          t.ProductID.Int64(),
			ProductName:        t.ProductName,
			ProductDescription: t.ProductDescription,
			Quantity:           t.Quantity.Int64(),
			Price:              t.Price.Int64(),
		})
	}
	return out
}

// unixDate is midnight UTC of the date, in seconds.
func unixDate(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}
