package health

import (
	"context"

	"github.com/sipeed/ordersync/pkg/commerce"
)

type shopFetcher interface {
	Shop(ctx context.Context) (commerce.Shop, error)
}

type titleFetcher interface {
	Title(ctx context.Context) (string, error)
}

func ShopifyProbe(client shopFetcher) Probe {
	return Probe{
		Name: "shopify",
		Check: func(ctx context.Context) (string, error) {
			shop, err := client.Shop(ctx)
			if err != nil {
				return "", err
			}
			return shop.Name, nil
		},
	}
}

func SheetsProbe(store titleFetcher) Probe {
	return Probe{
		Name: "sheets",
		Check: func(ctx context.Context) (string, error) {
			return store.Title(ctx)
		},
	}
}
