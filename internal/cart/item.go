package cart

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// maxLineQuantity caps any single line regardless of stock.
const maxLineQuantity = 99

// Item is one product line in the cart. ProductID is the unique key;
// insertion order is display order.
type Item struct {
	ProductID string  `json:"productId" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"gt=0"`
	Unit      string  `json:"unit" validate:"required"`
	Quantity  int     `json:"quantity" validate:"gte=0"`
	Stock     int     `json:"stock" validate:"gte=0"`
	FarmerID  string  `json:"farmerId"`
	Image     string  `json:"image,omitempty"`
}

// MaxQuantity is the largest quantity this line may hold.
func (i Item) MaxQuantity() int {
	if i.Stock < maxLineQuantity {
		return i.Stock
	}
	return maxLineQuantity
}

// Snapshot is the read model handed to presentational layers. Totals are
// derived from Items, never set independently.
type Snapshot struct {
	Items       []Item  `json:"items"`
	TotalItems  int     `json:"totalItems"`
	TotalAmount float64 `json:"totalAmount"`
	IsLoading   bool    `json:"isLoading"`
	LastError   string  `json:"lastError,omitempty"`
}

// computeTotals derives the item count and the 2-decimal money total.
// Decimal math keeps repeated float sums from drifting.
func computeTotals(items []Item) (int, float64) {
	totalItems := 0
	amount := decimal.Zero
	for _, item := range items {
		totalItems += item.Quantity
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		amount = amount.Add(line)
	}
	return totalItems, amount.Round(2).InexactFloat64()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// validItem rejects malformed product data before it can enter the cart.
func validItem(item Item) bool {
	return validate.Struct(item) == nil
}

func cloneItems(items []Item) []Item {
	if len(items) == 0 {
		return []Item{}
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
