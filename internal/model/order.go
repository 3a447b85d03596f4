package model

import (
	"time"

	"github.com/shopspring/decimal"

	dec "github.com/rezonia/fiscal-manager/internal/decimal"
)

// OrderStatus is the lifecycle state of a sales order
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderInvoiced  OrderStatus = "invoiced"
	OrderCancelled OrderStatus = "cancelled"
)

// QuoteStatus is the lifecycle state of a quote (orçamento)
type QuoteStatus string

const (
	QuoteDraft     QuoteStatus = "draft"
	QuoteSent      QuoteStatus = "sent"
	QuoteConverted QuoteStatus = "converted"
	QuoteRejected  QuoteStatus = "rejected"
)

// LineItem is the priced part shared by order and quote items
type LineItem struct {
	ProductID       uint            `gorm:"not null" json:"product_id" binding:"required"`
	Description     string          `gorm:"size:120" json:"description,omitempty" binding:"max=120"`
	Quantity        decimal.Decimal `gorm:"type:decimal(15,4);not null" json:"quantity" binding:"gt=0"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"unit_price" binding:"gte=0"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2)" json:"discount_percent" binding:"percent"`
	Amount          decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(15,2)" json:"discount_amount"`
	Total           decimal.Decimal `gorm:"type:decimal(15,2)" json:"total"`
}

// Calculate computes amount, discount and total from quantity, price and discount
func (li *LineItem) Calculate() {
	li.Amount = dec.LineAmount(li.Quantity, li.UnitPrice)
	li.DiscountAmount = dec.Percentage(li.Amount, li.DiscountPercent)
	li.Total = dec.Net(li.Amount, li.DiscountAmount)
}

// Totals is the header summary of a priced document
type Totals struct {
	Subtotal decimal.Decimal `gorm:"type:decimal(15,2)" json:"subtotal"`
	Discount decimal.Decimal `gorm:"type:decimal(15,2)" json:"discount"`
	Total    decimal.Decimal `gorm:"type:decimal(15,2)" json:"total"`
}

func sumLines(items []*LineItem) Totals {
	var t Totals
	amounts := make([]decimal.Decimal, 0, len(items))
	discounts := make([]decimal.Decimal, 0, len(items))
	for _, it := range items {
		it.Calculate()
		amounts = append(amounts, it.Amount)
		discounts = append(discounts, it.DiscountAmount)
	}
	t.Subtotal = dec.Sum(amounts)
	t.Discount = dec.Sum(discounts)
	t.Total = t.Subtotal.Sub(t.Discount)
	return t
}

// Order is a sales order (pedido)
type Order struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	ClientID  uint        `gorm:"not null;index" json:"client_id" binding:"required"`
	Status    OrderStatus `gorm:"size:16;not null;default:open" json:"status"`
	QuoteID   *uint       `gorm:"index" json:"quote_id,omitempty"`
	Notes     string      `gorm:"size:500" json:"notes,omitempty" binding:"max=500"`
	Items     []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items" binding:"required,min=1,dive"`
	Totals    `gorm:"embedded"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// OrderItem is one line of an order
type OrderItem struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	OrderID  uint `gorm:"not null;index" json:"-"`
	LineItem `gorm:"embedded"`
}

// CalculateTotals recomputes every line and the header totals
func (o *Order) CalculateTotals() {
	lines := make([]*LineItem, len(o.Items))
	for i := range o.Items {
		lines[i] = &o.Items[i].LineItem
	}
	o.Totals = sumLines(lines)
}

// Quote is a price proposal (orçamento) that can become an order
type Quote struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	ClientID   uint        `gorm:"not null;index" json:"client_id" binding:"required"`
	Status     QuoteStatus `gorm:"size:16;not null;default:draft" json:"status"`
	ValidUntil *time.Time  `json:"valid_until,omitempty"`
	Notes      string      `gorm:"size:500" json:"notes,omitempty" binding:"max=500"`
	Items      []QuoteItem `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE" json:"items" binding:"required,min=1,dive"`
	Totals     `gorm:"embedded"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// QuoteItem is one line of a quote
type QuoteItem struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	QuoteID  uint `gorm:"not null;index" json:"-"`
	LineItem `gorm:"embedded"`
}

// CalculateTotals recomputes every line and the header totals
func (q *Quote) CalculateTotals() {
	lines := make([]*LineItem, len(q.Items))
	for i := range q.Items {
		lines[i] = &q.Items[i].LineItem
	}
	q.Totals = sumLines(lines)
}

// Expired reports whether the quote validity ended before now
func (q *Quote) Expired(now time.Time) bool {
	return q.ValidUntil != nil && q.ValidUntil.Before(now)
}

// ToOrder builds an open order carrying the quote lines
func (q *Quote) ToOrder() *Order {
	order := &Order{
		ClientID: q.ClientID,
		Status:   OrderOpen,
		QuoteID:  &q.ID,
		Notes:    q.Notes,
		Items:    make([]OrderItem, len(q.Items)),
	}
	for i, it := range q.Items {
		order.Items[i] = OrderItem{LineItem: it.LineItem}
	}
	order.CalculateTotals()
	return order
}
