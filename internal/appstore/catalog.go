package appstore

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultCatalog returns the built-in subscription group. Deployments
// override it with a catalog file when display metadata matters.
func DefaultCatalog() []Product {
	return []Product{
		{
			ID:           "subscription.pro.monthly",
			DisplayName:  "Solarc Pro Monthly",
			Price:        1.99,
			DisplayPrice: "$1.99",
			Period:       "month",
		},
		{
			ID:           "subscription.pro.yearly",
			DisplayName:  "Solarc Pro Yearly",
			Price:        18.99,
			DisplayPrice: "$18.99",
			Period:       "year",
		},
	}
}

// LoadCatalog reads a product catalog from a JSON file.
func LoadCatalog(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("catalog %s is empty", path)
	}
	return products, nil
}
