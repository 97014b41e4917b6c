// Package catalog looks up partners and their products for pricing.
package catalog

import (
	"context"
	"errors"

	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/store"
)

var ErrNotFound = errors.New("catalog entry not found")

type Catalog interface {
	Partner(ctx context.Context, partnerID string) (model.Partner, error)
	// Products returns products in the order of productIDs. All of them must
	// belong to the partner.
	Products(ctx context.Context, partnerID string, productIDs []string) ([]model.Product, error)
}

type storeCatalog struct {
	store store.Store
}

// NewStoreCatalog serves the catalog from the partners and products tables.
func NewStoreCatalog(store store.Store) Catalog {
	return &storeCatalog{store: store}
}

func (c *storeCatalog) Partner(ctx context.Context, partnerID string) (model.Partner, error) {
	partner, err := c.store.PartnerGet(ctx, partnerID)
	if errors.Is(err, store.ErrNoRows) {
		return model.Partner{}, ErrNotFound
	}
	return partner, err
}

func (c *storeCatalog) Products(ctx context.Context, partnerID string, productIDs []string) ([]model.Product, error) {
	products, err := c.store.ProductGetList(ctx, partnerID, productIDs)
	if errors.Is(err, store.ErrNoRows) {
		return nil, errors.Join(ErrNotFound, err)
	}
	return products, err
}
