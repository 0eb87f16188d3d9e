// ABOUTME: Order domain model with server-side total recomputation
// ABOUTME: Pure mapping to and from DTOs; no I/O

package models

import (
	"math"

	"github.com/agentdoodle/doodle-server/internal/dto"
)

// Price is a monetary amount rounded to five decimal places.
type Price struct {
	Value    float64
	Currency string
}

// NewPrice rounds the value to five decimal places, matching how prices are
// presented and compared throughout the system.
func NewPrice(value float64, currency string) Price {
	return Price{Value: round5(value), Currency: currency}
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

// OrderItem is one line item of an order.
type OrderItem struct {
	ID           string
	Name         string
	SKU          string
	Quantity     float64
	TaxRate      float64
	Price        Price
	PriceInclTax Price
}

// Order is the commerce domain entity. Totals carried in from outside are
// never trusted; CalcTotals derives them from line items before persistence.
type Order struct {
	ID        string
	AgentID   string
	SessionID string

	BillingAddress  dto.AddressDTO
	ShippingAddress dto.AddressDTO
	Attributes      map[string]any
	Notes           []dto.OrderNoteDTO
	StatusChanges   []dto.StatusChangeDTO
	Customer        dto.CustomerDTO

	Status string
	Email  string

	Subtotal             Price
	SubTotalInclTax      Price
	SubtotalTaxValue     Price
	Total                Price
	TotalInclTax         Price
	ShippingPrice        Price
	ShippingMethod       string
	ShippingPriceTaxRate float64
	ShippingPriceInclTax Price

	Items []OrderItem

	CreatedAt string
	UpdatedAt string
}

// CalcTotals recomputes every derived price field from the line items and
// shipping price. Idempotent: recomputing an already-consistent order leaves
// it unchanged.
func (o *Order) CalcTotals() {
	currency := o.currency()

	var subtotal, subtotalInclTax float64
	for i := range o.Items {
		item := &o.Items[i]

		// Derive the tax-inclusive unit price when the caller omitted it.
		if item.PriceInclTax.Value == 0 && item.Price.Value != 0 {
			item.PriceInclTax = NewPrice(item.Price.Value*(1+item.TaxRate), currency)
		}

		subtotal += item.Price.Value * item.Quantity
		subtotalInclTax += item.PriceInclTax.Value * item.Quantity
	}

	o.Subtotal = NewPrice(subtotal, currency)
	o.SubTotalInclTax = NewPrice(subtotalInclTax, currency)
	o.SubtotalTaxValue = NewPrice(subtotalInclTax-subtotal, currency)

	o.ShippingPrice = NewPrice(o.ShippingPrice.Value, currency)
	o.ShippingPriceInclTax = NewPrice(o.ShippingPrice.Value*(1+o.ShippingPriceTaxRate), currency)

	o.Total = NewPrice(subtotal+o.ShippingPrice.Value, currency)
	o.TotalInclTax = NewPrice(subtotalInclTax+o.ShippingPriceInclTax.Value, currency)
}

// currency picks the order currency from the first priced line item, falling
// back to any previously set subtotal currency, then USD.
func (o *Order) currency() string {
	for _, item := range o.Items {
		if item.Price.Currency != "" {
			return item.Price.Currency
		}
	}
	if o.Subtotal.Currency != "" {
		return o.Subtotal.Currency
	}
	return "USD"
}

// OrderFromDTO builds the domain model from its transfer shape.
func OrderFromDTO(d dto.OrderDTO) *Order {
	items := make([]OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, OrderItem{
			ID:           it.ID,
			Name:         it.Name,
			SKU:          it.SKU,
			Quantity:     it.Quantity,
			TaxRate:      it.TaxRate,
			Price:        Price(it.Price),
			PriceInclTax: Price(it.PriceInclTax),
		})
	}

	return &Order{
		ID:                   d.ID,
		AgentID:              d.AgentID,
		SessionID:            d.SessionID,
		BillingAddress:       d.BillingAddress,
		ShippingAddress:      d.ShippingAddress,
		Attributes:           d.Attributes,
		Notes:                d.Notes,
		StatusChanges:        d.StatusChanges,
		Customer:             d.Customer,
		Status:               d.Status,
		Email:                d.Email,
		Subtotal:             Price(d.Subtotal),
		SubTotalInclTax:      Price(d.SubTotalInclTax),
		SubtotalTaxValue:     Price(d.SubtotalTaxValue),
		Total:                Price(d.Total),
		TotalInclTax:         Price(d.TotalInclTax),
		ShippingPrice:        Price(d.ShippingPrice),
		ShippingMethod:       d.ShippingMethod,
		ShippingPriceTaxRate: d.ShippingPriceTaxRate,
		ShippingPriceInclTax: Price(d.ShippingPriceInclTax),
		Items:                items,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

// ToDTO maps the domain model back to its transfer shape.
func (o *Order) ToDTO() dto.OrderDTO {
	items := make([]dto.OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, dto.OrderItemDTO{
			ID:           it.ID,
			Name:         it.Name,
			SKU:          it.SKU,
			Quantity:     it.Quantity,
			TaxRate:      it.TaxRate,
			Price:        dto.PriceDTO(it.Price),
			PriceInclTax: dto.PriceDTO(it.PriceInclTax),
		})
	}

	return dto.OrderDTO{
		ID:                   o.ID,
		AgentID:              o.AgentID,
		SessionID:            o.SessionID,
		BillingAddress:       o.BillingAddress,
		ShippingAddress:      o.ShippingAddress,
		Attributes:           o.Attributes,
		Notes:                o.Notes,
		StatusChanges:        o.StatusChanges,
		Customer:             o.Customer,
		Status:               o.Status,
		Email:                o.Email,
		Subtotal:             dto.PriceDTO(o.Subtotal),
		SubTotalInclTax:      dto.PriceDTO(o.SubTotalInclTax),
		SubtotalTaxValue:     dto.PriceDTO(o.SubtotalTaxValue),
		Total:                dto.PriceDTO(o.Total),
		TotalInclTax:         dto.PriceDTO(o.TotalInclTax),
		ShippingPrice:        dto.PriceDTO(o.ShippingPrice),
		ShippingMethod:       o.ShippingMethod,
		ShippingPriceTaxRate: o.ShippingPriceTaxRate,
		ShippingPriceInclTax: dto.PriceDTO(o.ShippingPriceInclTax),
		Items:                items,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}
