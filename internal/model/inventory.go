package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is one card owned by the signed-in user, stored in
// users/{uid}/cards.
type InventoryItem struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	ImageURL             string           `json:"imageUrl"`
	Price                decimal.Decimal  `json:"price"`
	AddedDate            time.Time        `json:"addedDate"`
	PurchaseDate         *time.Time       `json:"purchaseDate,omitempty"`
	PurchasePrice        *decimal.Decimal `json:"purchasePrice,omitempty"`
	IsGraded             *bool            `json:"isGraded,omitempty"`
	LastModificationDate *time.Time       `json:"lastModificationDate,omitempty"`
}

// Inventory document fields.
const (
	FieldName                 = "name"
	FieldImageURL             = "imageUrl"
	FieldPrice                = "price"
	FieldAddedDate            = "addedDate"
	FieldPurchaseDate         = "purchaseDate"
	FieldPurchasePrice        = "purchasePrice"
	FieldIsGraded             = "isGraded"
	FieldLastModificationDate = "lastModificationDate"
)

// ToDocument encodes the item without its id. Absent optionals are omitted.
func (it *InventoryItem) ToDocument() Document {
	doc := Document{
		FieldName:      it.Name,
		FieldImageURL:  it.ImageURL,
		FieldPrice:     it.Price,
		FieldAddedDate: it.AddedDate,
	}
	putTime(doc, FieldPurchaseDate, it.PurchaseDate)
	putDecimal(doc, FieldPurchasePrice, it.PurchasePrice)
	putTime(doc, FieldLastModificationDate, it.LastModificationDate)
	if it.IsGraded != nil {
		doc[FieldIsGraded] = *it.IsGraded
	}
	return doc
}

// InventoryItemFromDocument decodes a card document.
func InventoryItemFromDocument(id string, doc Document) InventoryItem {
	it := InventoryItem{
		ID:                   id,
		Name:                 doc.String(FieldName),
		ImageURL:             doc.String(FieldImageURL),
		PurchaseDate:         doc.TimePtr(FieldPurchaseDate),
		PurchasePrice:        doc.DecimalPtr(FieldPurchasePrice),
		LastModificationDate: doc.TimePtr(FieldLastModificationDate),
	}
	it.Price, _ = doc.Decimal(FieldPrice)
	it.AddedDate, _ = doc.Time(FieldAddedDate)
	if g, ok := doc.Bool(FieldIsGraded); ok {
		it.IsGraded = &g
	}
	return it
}

// HasAcquisition reports whether a purchase date or price is on record.
func (it *InventoryItem) HasAcquisition() bool {
	return it.PurchaseDate != nil || it.PurchasePrice != nil
}

// ItemInput is the caller-supplied payload for adding a card.
type ItemInput struct {
	Name          string           `json:"name" validate:"required,max=200"`
	ImageURL      string           `json:"imageUrl" validate:"omitempty,max=2048"`
	Price         decimal.Decimal  `json:"price" validate:"gte=0"`
	PurchaseDate  *time.Time       `json:"purchaseDate,omitempty"`
	PurchasePrice *decimal.Decimal `json:"purchasePrice,omitempty" validate:"omitempty,gte=0"`
	IsGraded      *bool            `json:"isGraded,omitempty"`
}

// ItemPatch is a partial update of a card; nil fields are left untouched.
type ItemPatch struct {
	Name          *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	ImageURL      *string          `json:"imageUrl,omitempty" validate:"omitempty,max=2048"`
	Price         *decimal.Decimal `json:"price,omitempty" validate:"omitempty,gte=0"`
	PurchaseDate  *time.Time       `json:"purchaseDate,omitempty"`
	PurchasePrice *decimal.Decimal `json:"purchasePrice,omitempty" validate:"omitempty,gte=0"`
	IsGraded      *bool            `json:"isGraded,omitempty"`
}

// ToDocument encodes the set fields of the patch.
func (p *ItemPatch) ToDocument() Document {
	doc := Document{}
	if p.Name != nil {
		doc[FieldName] = *p.Name
	}
	if p.ImageURL != nil {
		doc[FieldImageURL] = *p.ImageURL
	}
	putDecimal(doc, FieldPrice, p.Price)
	putTime(doc, FieldPurchaseDate, p.PurchaseDate)
	putDecimal(doc, FieldPurchasePrice, p.PurchasePrice)
	if p.IsGraded != nil {
		doc[FieldIsGraded] = *p.IsGraded
	}
	return doc
}

// Apply returns a copy of it with the patch applied.
func (p *ItemPatch) Apply(it InventoryItem) InventoryItem {
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.ImageURL != nil {
		it.ImageURL = *p.ImageURL
	}
	if p.Price != nil {
		it.Price = *p.Price
	}
	if p.PurchaseDate != nil {
		t := *p.PurchaseDate
		it.PurchaseDate = &t
	}
	if p.PurchasePrice != nil {
		v := *p.PurchasePrice
		it.PurchasePrice = &v
	}
	if p.IsGraded != nil {
		g := *p.IsGraded
		it.IsGraded = &g
	}
	return it
}

// SaleInput is the payload for selling a card.
type SaleInput struct {
	SalePrice decimal.Decimal `json:"salePrice" validate:"gte=0"`
	SaleDate  *time.Time      `json:"saleDate,omitempty"`
}
