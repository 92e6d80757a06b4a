// Package diff detects products that were absent from a previous snapshot.
package diff

import "github.com/aluiziolira/go-product-monitor/models"

// NewProducts returns the records of current whose SKU is not in previous,
// in their original order. Duplicates are kept. Records without a SKU cannot
// be matched against anything and are always reported as new.
func NewProducts(current []models.Product, previous map[string]struct{}) []models.Product {
	var fresh []models.Product
	for _, p := range current {
		if p.HasSKU() {
			if _, seen := previous[p.SKU]; seen {
				continue
			}
		}
		fresh = append(fresh, p)
	}
	return fresh
}
