package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrOrderNotFound = errors.New("order not found")

type Order struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Attributes maps "<namespace>.<key>" to the metafield value as text.
type Attributes map[string]string

type Metafield struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Type      string          `json:"type,omitempty"`
}

type Shop struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// ResolveByName finds the order whose name equals name exactly. The API's
// name filter is loose, so candidates are checked again here.
func (c *Client) ResolveByName(ctx context.Context, name string) (Order, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Order{}, fmt.Errorf("order name is required")
	}

	query := url.Values{}
	query.Set("name", name)
	query.Set("status", "any")
	query.Set("fields", "id,name")

	var payload struct {
		Orders []Order `json:"orders"`
	}
	if err := c.Get(ctx, "orders.json", query, &payload); err != nil {
		return Order{}, err
	}
	for _, o := range payload.Orders {
		if o.Name == name {
			return o, nil
		}
	}
	return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, name)
}

// FetchAttributes lists the order's metafields and flattens them. Entries
// with a blank namespace or key are dropped; later duplicates win.
func (c *Client) FetchAttributes(ctx context.Context, orderID int64) (Attributes, error) {
	var payload struct {
		Metafields []Metafield `json:"metafields"`
	}
	path := fmt.Sprintf("orders/%d/metafields.json", orderID)
	if err := c.Get(ctx, path, nil, &payload); err != nil {
		return nil, err
	}
	return FlattenMetafields(payload.Metafields), nil
}

func FlattenMetafields(fields []Metafield) Attributes {
	attrs := make(Attributes, len(fields))
	for _, f := range fields {
		ns := strings.TrimSpace(f.Namespace)
		key := strings.TrimSpace(f.Key)
		if ns == "" || key == "" {
			continue
		}
		attrs[ns+"."+key] = metafieldText(f.Value)
	}
	return attrs
}

// metafieldText unwraps JSON strings and keeps any other JSON value as its
// literal text, so numbers and booleans read the way Shopify displays them.
func metafieldText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Shop fetches the store record. It doubles as the connectivity probe.
func (c *Client) Shop(ctx context.Context) (Shop, error) {
	var payload struct {
		Shop Shop `json:"shop"`
	}
	if err := c.Get(ctx, "shop.json", nil, &payload); err != nil {
		return Shop{}, err
	}
	return payload.Shop, nil
}
