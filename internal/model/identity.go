package model

import (
	"fmt"
	"strings"
)

// IdentityFunc derives the variant key used to partition observations.
// An empty key means the record cannot be attributed and is dropped.
type IdentityFunc func(Variant) string

// Identity scheme names accepted by ParseIdentity.
const (
	IdentityCatalog   = "catalog"
	IdentitySellerSKU = "seller-sku"
)

// CatalogIdentity keys variants by the catalog-wide identifier, so the same
// item sold by different sellers collapses into one variant.
func CatalogIdentity(v Variant) string {
	return strings.TrimSpace(v.CatalogID)
}

// SellerSKUIdentity keys variants by (seller, sku). Both parts are required.
func SellerSKUIdentity(v Variant) string {
	seller := strings.ToLower(strings.TrimSpace(v.Seller))
	sku := strings.TrimSpace(v.SKU)
	if seller == "" || sku == "" {
		return ""
	}
	return seller + "/" + sku
}

// ParseIdentity returns the IdentityFunc for a scheme name ("" = seller-sku).
func ParseIdentity(name string) (IdentityFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", IdentitySellerSKU, "seller_sku", "compound":
		return SellerSKUIdentity, nil
	case IdentityCatalog, "gtin":
		return CatalogIdentity, nil
	default:
		return nil, fmt.Errorf("unknown identity scheme %q (use %s or %s)",
			name, IdentitySellerSKU, IdentityCatalog)
	}
}

// ToObservations applies id to every record. Records without a key are
// skipped and counted in dropped.
func ToObservations(records []PriceRecord, id IdentityFunc) (obs []Observation, dropped int) {
	obs = make([]Observation, 0, len(records))
	for _, r := range records {
		key := id(r.Variant)
		if key == "" {
			dropped++
			continue
		}
		obs = append(obs, Observation{
			VariantID:  key,
			Price:      r.Price,
			ObservedAt: r.ObservedAt,
		})
	}
	return obs, dropped
}
