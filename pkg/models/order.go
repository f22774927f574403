package models

import (
	"time"
)

// OrderStatus values are stored verbatim and shown to shoppers as-is.
type OrderStatus string

const (
	StatusNew      OrderStatus = "Jarayonda"
	StatusAccepted OrderStatus = "Qabul qilindi"
	StatusRejected OrderStatus = "Bekor qilindi"
)

const (
	OrdersCollection   = "orders"
	ProductsCollection = "products"
)

// Order is written once at intake; afterwards only Status changes.
type Order struct {
	ID         string      `bson:"-" json:"id"`
	UserID     string      `bson:"userId" json:"user_id"`
	UserInfo   UserInfo    `bson:"userInfo" json:"user_info"`
	Items      []OrderItem `bson:"items" json:"items"`
	TotalPrice float64     `bson:"totalPrice" json:"total_price"`
	Status     OrderStatus `bson:"status,omitempty" json:"status"`
	CreatedAt  time.Time   `bson:"createdAt,omitempty" json:"created_at"`
}

// UserInfo is the shopper display snapshot taken when the order was placed.
type UserInfo struct {
	ID        string `bson:"id" json:"id"`
	FirstName string `bson:"first_name" json:"first_name"`
	LastName  string `bson:"last_name" json:"last_name"`
	Username  string `bson:"username" json:"username"`
}

type OrderItem struct {
	Name     string  `bson:"name" json:"name"`
	Size     string  `bson:"size" json:"size"`
	Quantity int     `bson:"quantity" json:"quantity"`
	Price    float64 `bson:"price" json:"price"`
}

func (i OrderItem) Subtotal() float64 {
	return float64(i.Quantity) * i.Price
}

// CurrentStatus reports StatusNew for documents written without a status.
func (o *Order) CurrentStatus() OrderStatus {
	if o.Status == "" {
		return StatusNew
	}
	return o.Status
}

// ItemsTotal is the sum of item subtotals; it may differ from TotalPrice,
// which comes from the storefront.
func (o *Order) ItemsTotal() float64 {
	var total float64
	for _, item := range o.Items {
		total += item.Subtotal()
	}
	return total
}
