package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-product-monitor/models"
)

// maxListedProducts caps how many new products are spelled out in a message.
const maxListedProducts = 10

// NewProductsMessage announces newly detected products on site. The file
// line is omitted when newProductsFile is empty.
func NewProductsMessage(site, newProductsFile string, products []models.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 Au apărut %d produse noi pe %s!\n", len(products), site)
	if newProductsFile != "" {
		fmt.Fprintf(&b, "Vezi fișierul %s.\n", filepath.Base(newProductsFile))
	}

	for i, p := range products {
		if i == maxListedProducts {
			fmt.Fprintf(&b, "\n… și încă %d", len(products)-maxListedProducts)
			break
		}
		b.WriteString("\n• ")
		b.WriteString(p.Title)
		if p.PriceCurrent != "" {
			b.WriteString(" (" + p.PriceCurrent + ")")
		}
		b.WriteString("\n  " + p.URL)
	}
	return b.String()
}

// SummaryMessage reports a run that found nothing new.
func SummaryMessage(site string, result *models.RunResult) string {
	return fmt.Sprintf("ℹ️ Nu există produse noi pe %s față de ultima scanare.\nPagini procesate: %d, produse: %d, erori: %d.",
		site, result.Processed, len(result.Records), result.Failures)
}
