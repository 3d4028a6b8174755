package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/pricing"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
	StatusOnHold     Status = "ON_HOLD"
)

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentPaid              PaymentStatus = "PAID"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentCreditCard     PaymentMethod = "CREDIT_CARD"
	PaymentDebitCard      PaymentMethod = "DEBIT_CARD"
	PaymentBankTransfer   PaymentMethod = "BANK_TRANSFER"
	PaymentDigitalWallet  PaymentMethod = "DIGITAL_WALLET"
	PaymentOther          PaymentMethod = "OTHER"
)

// DefaultCountry is used for shipping addresses without a country.
const DefaultCountry = "Philippines"

// Customer holds the buyer contact details.
type Customer struct {
	Name  string `validate:"required,max=255"`
	Email string `validate:"required,email"`
	Phone string `validate:"omitempty,max=50"`
}

// Address is a postal address.
type Address struct {
	Line    string `validate:"required"`
	City    string `validate:"required"`
	State   string
	Zip     string
	Country string
}

// Order represents a placed customer order with its pricing breakdown.
type Order struct {
	ID            string
	Number        string
	UserID        string
	Status        Status
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	Customer      Customer
	Shipping      Address
	Billing       *Address

	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	DiscountSource pricing.DiscountSource
	// DiscountCodeID is the applied discount code, empty when none applied.
	DiscountCodeID string

	Notes         string
	InternalNotes string

	Items     []OrderItem
	History   []StatusChange
	CreatedAt time.Time
}

// OrderItem is a priced line of an order. Product details are copied so the
// order stays readable after catalog changes.
type OrderItem struct {
	ProductID      string
	ProductName    string
	SKU            string
	Image          string
	VariantID      string
	VariantName    string
	VariantOptions map[string]string
	UnitPrice      decimal.Decimal
	Quantity       int
	Subtotal       decimal.Decimal
}

// StatusChange is an entry of the order status history.
type StatusChange struct {
	From      Status
	To        Status
	Note      string
	ChangedBy string
	CreatedAt time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order with its items and status history, bumps the
	// usage counter of the applied discount code and decrements stock for
	// catalog items. All of it happens atomically.
	Create(ctx context.Context, order *Order) error
}
