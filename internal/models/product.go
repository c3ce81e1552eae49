package models

import (
	"time"
)

// ProductRecord is one row scraped from a seller's listing table. Price and
// availability are kept as the site's display strings; the source formatting
// is not guaranteed to be numeric.
type ProductRecord struct {
	Name         string    `json:"name"`
	Price        string    `json:"price"`
	Availability string    `json:"availability"`
	ObservedAt   time.Time `json:"observed_at"`
}

func NewProductRecord(name, price, availability string) ProductRecord {
	return ProductRecord{
		Name:         name,
		Price:        price,
		Availability: availability,
		ObservedAt:   time.Now().UTC(),
	}
}

// Fingerprint is the product's identity for dedup purposes. Availability is
// excluded on purpose: a stock-count change on a known item must not look
// like a new product.
func (p ProductRecord) Fingerprint() string {
	return p.Name + "|" + p.Price
}
