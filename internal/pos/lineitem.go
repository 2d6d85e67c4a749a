package pos

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// InfoTypeCanceled marks a voided transaction.
const InfoTypeCanceled = "Canceled"

// Kind identifies which variant a LineItem holds.
type Kind int

const (
	// KindUnknown is a line item with no variant, or more than one.
	KindUnknown Kind = iota
	KindSalesItem
	KindReturnItem
	KindDiscount
	KindTransactionInfo
)

func (k Kind) String() string {
	switch k {
	case KindSalesItem:
		return "SalesItem"
	case KindReturnItem:
		return "ReturnItem"
	case KindDiscount:
		return "Discount"
	case KindTransactionInfo:
		return "TransactionInfo"
	default:
		return "Unknown"
	}
}

// Item is the body shared by SalesItem and ReturnItem.
type Item struct {
	ItemID          FlexString      `json:"ItemID"`
	ItemDescription *string         `json:"ItemDescription"`
	DepartmentID    *FlexString     `json:"DepartmentID"`
	Amount          decimal.Decimal `json:"Amount"`
	Quantity        decimal.Decimal `json:"Quantity"`
}

// DiscountEntry attributes a discount amount to one item.
type DiscountEntry struct {
	ItemID         FlexString      `json:"ItemID"`
	DiscountAmount decimal.Decimal `json:"DiscountAmount"`
}

type Discount struct {
	ItemList []DiscountEntry `json:"ItemList"`
}

type TransactionInfo struct {
	InfoType string `json:"InfoType"`
}

// LineItem is a discriminated union over the four line-item variants. The
// zero value is KindUnknown. Build one with the New* constructors or by
// decoding JSON.
type LineItem struct {
	kind     Kind
	item     *Item
	discount *Discount
	info     *TransactionInfo
}

func NewSalesItem(it Item) LineItem {
	return LineItem{kind: KindSalesItem, item: &it}
}

func NewReturnItem(it Item) LineItem {
	return LineItem{kind: KindReturnItem, item: &it}
}

func NewDiscount(d Discount) LineItem {
	return LineItem{kind: KindDiscount, discount: &d}
}

func NewTransactionInfo(info TransactionInfo) LineItem {
	return LineItem{kind: KindTransactionInfo, info: &info}
}

func (l LineItem) Kind() Kind { return l.kind }

// Item returns the sale or return body, or nil for other kinds.
func (l LineItem) Item() *Item { return l.item }

// Discount returns the discount body, or nil for other kinds.
func (l LineItem) Discount() *Discount { return l.discount }

// TransactionInfo returns the info body, or nil for other kinds.
func (l LineItem) TransactionInfo() *TransactionInfo {
	if l.kind != KindTransactionInfo {
		return nil
	}
	return l.info
}

// IsCancellation reports whether the item voids its transaction. An unknown
// item that still carries a Canceled TransactionInfo voids it too.
func (l LineItem) IsCancellation() bool {
	return l.info != nil && l.info.InfoType == InfoTypeCanceled
}

// SignedAmounts returns the gross amount and quantity with the sign of the
// variant: as-is for a sale, negated for a return. ok is false for every
// other kind.
func (l LineItem) SignedAmounts() (gross, quantity decimal.Decimal, ok bool) {
	switch l.kind {
	case KindSalesItem:
		return l.item.Amount, l.item.Quantity, true
	case KindReturnItem:
		return l.item.Amount.Neg(), l.item.Quantity.Neg(), true
	default:
		return decimal.Zero, decimal.Zero, false
	}
}

type rawLineItem struct {
	SalesItem       json.RawMessage `json:"SalesItem"`
	ReturnItem      json.RawMessage `json:"ReturnItem"`
	Discount        json.RawMessage `json:"Discount"`
	TransactionInfo json.RawMessage `json:"TransactionInfo"`
}

// UnmarshalJSON selects the variant by which field is populated. A line item
// with no populated variant, or several, decodes to KindUnknown without error
// and keeps only its InfoType, if one decodes. A populated variant whose
// fields have the wrong type is an error.
func (l *LineItem) UnmarshalJSON(data []byte) error {
	var raw rawLineItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("line item: %w", err)
	}

	present := 0
	for _, field := range [][]byte{raw.SalesItem, raw.ReturnItem, raw.Discount, raw.TransactionInfo} {
		if !isNull(field) {
			present++
		}
	}
	if present != 1 {
		*l = LineItem{}
		var info TransactionInfo
		if !isNull(raw.TransactionInfo) && json.Unmarshal(raw.TransactionInfo, &info) == nil {
			l.info = &info
		}
		return nil
	}

	switch {
	case !isNull(raw.SalesItem):
		var it Item
		if err := json.Unmarshal(raw.SalesItem, &it); err != nil {
			return fmt.Errorf("SalesItem: %w", err)
		}
		*l = NewSalesItem(it)
	case !isNull(raw.ReturnItem):
		var it Item
		if err := json.Unmarshal(raw.ReturnItem, &it); err != nil {
			return fmt.Errorf("ReturnItem: %w", err)
		}
		*l = NewReturnItem(it)
	case !isNull(raw.Discount):
		var d Discount
		if err := json.Unmarshal(raw.Discount, &d); err != nil {
			return fmt.Errorf("Discount: %w", err)
		}
		*l = NewDiscount(d)
	default:
		var info TransactionInfo
		if err := json.Unmarshal(raw.TransactionInfo, &info); err != nil {
			return fmt.Errorf("TransactionInfo: %w", err)
		}
		*l = NewTransactionInfo(info)
	}
	return nil
}
