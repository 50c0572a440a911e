package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestExtractVAT(t *testing.T) {
	tests := []struct {
		name     string
		total    string
		rate     float64
		subtotal string
		tax      string
	}{
		{
			name:     "standard kenyan rate",
			total:    "1200.00",
			rate:     0.16,
			subtotal: "1034.48",
			tax:      "165.52",
		},
		{
			name:     "exact division",
			total:    "2.32",
			rate:     0.16,
			subtotal: "2.00",
			tax:      "0.32",
		},
		{
			name:     "zero rate keeps the total",
			total:    "500.00",
			rate:     0,
			subtotal: "500.00",
			tax:      "0.00",
		},
		{
			name:     "zero total",
			total:    "0.00",
			rate:     0.16,
			subtotal: "0.00",
			tax:      "0.00",
		},
		{
			name:     "small amount",
			total:    "100.00",
			rate:     0.16,
			subtotal: "86.21",
			tax:      "13.79",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := decimal.RequireFromString(tt.total)
			subtotal, tax := ExtractVAT(total, tt.rate)

			assert.True(t, decimal.RequireFromString(tt.subtotal).Equal(subtotal),
				"subtotal: want %s got %s", tt.subtotal, subtotal)
			assert.True(t, decimal.RequireFromString(tt.tax).Equal(tax),
				"tax: want %s got %s", tt.tax, tax)
			assert.True(t, subtotal.Add(tax).Equal(total), "split must add back to the total")
		})
	}
}
