package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionType is the kind of an action log entry.
type ActionType string

const (
	ActionAdded    ActionType = "added"
	ActionAcquired ActionType = "acquired"
	ActionSold     ActionType = "sold"
	ActionRemoved  ActionType = "removed"
)

// ActionLogEntry is one append-only record of an inventory action, stored in
// history. It snapshots the card so it stays readable after deletion.
type ActionLogEntry struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	Date          time.Time        `json:"date"`
	ActionType    ActionType       `json:"actionType"`
	CardName      string           `json:"cardName"`
	CardID        string           `json:"cardId"`
	CardImageURL  string           `json:"cardImageUrl"`
	PurchaseDate  *time.Time       `json:"purchaseDate,omitempty"`
	PurchasePrice *decimal.Decimal `json:"purchasePrice,omitempty"`
	SaleDate      *time.Time       `json:"saleDate,omitempty"`
	SalePrice     *decimal.Decimal `json:"salePrice,omitempty"`
	Profit        *decimal.Decimal `json:"profit,omitempty"`
}

// Action log document fields.
const (
	FieldActionType   = "actionType"
	FieldCardName     = "cardName"
	FieldCardID       = "cardId"
	FieldCardImageURL = "cardImageUrl"
	FieldSaleDate     = "saleDate"
	FieldSalePrice    = "salePrice"
	FieldProfit       = "profit"
)

// ToDocument encodes the entry without its id. Absent optionals are omitted.
func (e *ActionLogEntry) ToDocument() Document {
	doc := Document{
		FieldUserID:       e.UserID,
		FieldDate:         e.Date,
		FieldActionType:   string(e.ActionType),
		FieldCardName:     e.CardName,
		FieldCardID:       e.CardID,
		FieldCardImageURL: e.CardImageURL,
	}
	putTime(doc, FieldPurchaseDate, e.PurchaseDate)
	putDecimal(doc, FieldPurchasePrice, e.PurchasePrice)
	putTime(doc, FieldSaleDate, e.SaleDate)
	putDecimal(doc, FieldSalePrice, e.SalePrice)
	putDecimal(doc, FieldProfit, e.Profit)
	return doc
}

// ActionLogEntryFromDocument decodes a history document.
func ActionLogEntryFromDocument(id string, doc Document) ActionLogEntry {
	e := ActionLogEntry{
		ID:            id,
		UserID:        doc.String(FieldUserID),
		ActionType:    ActionType(doc.String(FieldActionType)),
		CardName:      doc.String(FieldCardName),
		CardID:        doc.String(FieldCardID),
		CardImageURL:  doc.String(FieldCardImageURL),
		PurchaseDate:  doc.TimePtr(FieldPurchaseDate),
		PurchasePrice: doc.DecimalPtr(FieldPurchasePrice),
		SaleDate:      doc.TimePtr(FieldSaleDate),
		SalePrice:     doc.DecimalPtr(FieldSalePrice),
		Profit:        doc.DecimalPtr(FieldProfit),
	}
	e.Date, _ = doc.Time(FieldDate)
	return e
}

// Profit returns salePrice - purchasePrice, or nil when no purchase price is
// on record. Unknown profit is never reported as zero.
func Profit(salePrice decimal.Decimal, purchasePrice *decimal.Decimal) *decimal.Decimal {
	if purchasePrice == nil {
		return nil
	}
	p := salePrice.Sub(*purchasePrice)
	return &p
}

// Period is a time window for action log reads.
type Period string

const (
	PeriodWeek    Period = "1week"
	PeriodMonth   Period = "1month"
	Period3Months Period = "3months"
	Period6Months Period = "6months"
	PeriodYear    Period = "1year"
	Period2Years  Period = "2years"
)

// DefaultPeriod is used for unknown period names.
const DefaultPeriod = PeriodWeek

// ParsePeriod maps s onto a known period, falling back to DefaultPeriod.
func ParsePeriod(s string) Period {
	switch p := Period(s); p {
	case PeriodWeek, PeriodMonth, Period3Months, Period6Months, PeriodYear, Period2Years:
		return p
	default:
		return DefaultPeriod
	}
}

// Since returns the inclusive lower bound of the period ending at now.
func (p Period) Since(now time.Time) time.Time {
	switch ParsePeriod(string(p)) {
	case PeriodMonth:
		return now.AddDate(0, -1, 0)
	case Period3Months:
		return now.AddDate(0, -3, 0)
	case Period6Months:
		return now.AddDate(0, -6, 0)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	case Period2Years:
		return now.AddDate(-2, 0, 0)
	default:
		return now.AddDate(0, 0, -7)
	}
}
