package cart

import cartsvc "github.com/angelmondragon/ohya-backend/internal/cart"

type replaceCartRequest struct {
	Items []replaceCartLine `json:"items" validate:"max=100,dive"`
}

type replaceCartLine struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0,max=999"`
}

func (r replaceCartRequest) lines() []cartsvc.Line {
	lines := make([]cartsvc.Line, 0, len(r.Items))
	for _, item := range r.Items {
		lines = append(lines, cartsvc.Line{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}
