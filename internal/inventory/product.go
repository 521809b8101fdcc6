package inventory

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Delimiter = ';'
	numFields = 4
)

// Header is the first row of every persisted store, in column order.
var Header = []string{"name", "category", "quantity", "price"}

type Product struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Record is a product row exactly as it is persisted. Quantity and Price are
// kept as text until converted with Product.
type Record struct {
	Name     string
	Category string
	Quantity string
	Price    string
}

func (r Record) Product() (Product, error) {
	qty, err := strconv.Atoi(strings.TrimSpace(r.Quantity))
	if err != nil {
		return Product{}, fmt.Errorf("%w: %q: quantity %q", ErrMalformedRecord, r.Name, r.Quantity)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(r.Price), 64)
	if err != nil {
		return Product{}, fmt.Errorf("%w: %q: price %q", ErrMalformedRecord, r.Name, r.Price)
	}
	return Product{Name: r.Name, Category: r.Category, Quantity: qty, Price: price}, nil
}

func (p Product) Record() Record {
	return Record{
		Name:     p.Name,
		Category: p.Category,
		Quantity: strconv.Itoa(p.Quantity),
		Price:    strconv.FormatFloat(p.Price, 'f', -1, 64),
	}
}

func (r Record) fields() []string {
	return []string{r.Name, r.Category, r.Quantity, r.Price}
}

func toProducts(recs []Record) ([]Product, error) {
	out := make([]Product, 0, len(recs))
	for _, rec := range recs {
		p, err := rec.Product()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
