package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValuationPoint is the total collection value of one user on one day,
// stored in collectionHistory.
type ValuationPoint struct {
	ID     string          `json:"id"`
	UserID string          `json:"userId"`
	Date   time.Time       `json:"date"`
	Value  decimal.Decimal `json:"value"`
}

// Shared owner and timestamp fields of the flat collections.
const (
	FieldUserID = "userId"
	FieldDate   = "date"
	FieldValue  = "value"
)

// ToDocument encodes the point without its id.
func (v *ValuationPoint) ToDocument() Document {
	return Document{
		FieldUserID: v.UserID,
		FieldDate:   v.Date,
		FieldValue:  v.Value,
	}
}

// ValuationPointFromDocument decodes a collectionHistory document.
func ValuationPointFromDocument(id string, doc Document) ValuationPoint {
	p := ValuationPoint{ID: id, UserID: doc.String(FieldUserID)}
	p.Date, _ = doc.Time(FieldDate)
	p.Value, _ = doc.Decimal(FieldValue)
	return p
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day in a's
// location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ChartData is the parallel label/value projection of a valuation history.
type ChartData struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}
