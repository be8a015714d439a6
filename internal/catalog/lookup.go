package catalog

import (
	"context"
	"errors"

	"github.com/Sahil123-FNO/plubming-backend/internal/orders"
)

// Lookup answers existence checks across both catalogs for order creation.
type Lookup struct {
	Products *Service
	Services *Service
}

func (l Lookup) ItemExists(ctx context.Context, itemType orders.ItemType, id string) (bool, error) {
	var svc *Service
	switch itemType {
	case orders.ItemProduct:
		svc = l.Products
	case orders.ItemService:
		svc = l.Services
	}
	if svc == nil {
		return false, nil
	}
	item, err := svc.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return item.IsActive, nil
}
