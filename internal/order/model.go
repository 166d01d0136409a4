package order

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPendingApproval OrderStatus = "pending_approval"
	StatusApproved        OrderStatus = "approved"
	StatusProcessing      OrderStatus = "processing"
	StatusShipped         OrderStatus = "shipped"
	StatusCompleted       OrderStatus = "completed"
	StatusCancelled       OrderStatus = "cancelled"
	StatusUnknown         OrderStatus = "unknown"
)

func (os OrderStatus) String() string {
	return string(os)
}

// ParseOrderStatus maps a stored status string onto the closed set. Anything
// unrecognized becomes StatusUnknown instead of an error.
func ParseOrderStatus(s string) OrderStatus {
	switch st := OrderStatus(s); st {
	case StatusPendingApproval, StatusApproved, StatusProcessing, StatusShipped, StatusCompleted, StatusCancelled:
		return st
	default:
		return StatusUnknown
	}
}

func (os OrderStatus) IsTerminal() bool {
	return os == StatusCompleted || os == StatusCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentUnknown  PaymentStatus = "unknown"
)

func (ps PaymentStatus) String() string {
	return string(ps)
}

func ParsePaymentStatus(s string) PaymentStatus {
	switch st := PaymentStatus(s); st {
	case PaymentUnpaid, PaymentPaid, PaymentFailed, PaymentRefunded:
		return st
	default:
		return PaymentUnknown
	}
}

type ShippingAddress struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

// OrderItem is a snapshot of the product at purchase time and is never updated.
type OrderItem struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	ProductData json.RawMessage `json:"product_data,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Status          OrderStatus     `json:"status"`
	RawStatus       string          `json:"-"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	Currency        string          `json:"currency"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	ShippingMethod  string          `json:"shipping_method,omitempty"`
	TrackingNumber  *string         `json:"tracking_number,omitempty"`
	AdminApproved   bool            `json:"admin_approved"`
	Notes           string          `json:"notes,omitempty"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// StoredStatus is the status string as persisted. It differs from Status only
// when the stored value is not one this service recognizes.
func (o *Order) StoredStatus() string {
	if o.RawStatus != "" {
		return o.RawStatus
	}
	return o.Status.String()
}

// ListFilter narrows the admin order list. A zero Status lists everything.
type ListFilter struct {
	Status OrderStatus
	Limit  int
	Offset int
}
