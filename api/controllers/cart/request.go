package cart

import (
	cartstore "github.com/harvestly/cart-engine/internal/cart"
)

// AddItemRequest carries the product payload alongside the quantity to add.
// The engine trusts the UI for product data; it only checks shape, not truth.
type AddItemRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"gt=0"`
	Unit      string  `json:"unit" validate:"required"`
	Stock     int     `json:"stock" validate:"gte=0"`
	FarmerID  string  `json:"farmerId"`
	Image     string  `json:"image,omitempty"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
}

func (r AddItemRequest) item() cartstore.Item {
	return cartstore.Item{
		ProductID: r.ProductID,
		Name:      r.Name,
		Price:     r.Price,
		Unit:      r.Unit,
		Stock:     r.Stock,
		FarmerID:  r.FarmerID,
		Image:     r.Image,
	}
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=1"`
}
