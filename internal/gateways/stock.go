package gateways

import (
	"context"
	"net/http"
	"net/url"
)

// StockClient talks to the product/stock service, which also owns carts.
type StockClient struct {
	http *jsonClient
}

func NewStockClient(baseURL string, opts ...Option) (*StockClient, error) {
	c, err := newJSONClient("stock-service", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &StockClient{http: c}, nil
}

type stockChange struct {
	SizeID   string `json:"sizeId"`
	Quantity int    `json:"quantity"`
}

func (c *StockClient) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var out Product
	if err := c.http.do(ctx, http.MethodGet, "/products/"+url.PathEscape(productID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StockClient) GetSize(ctx context.Context, sizeID string) (*Size, error) {
	var out Size
	if err := c.http.do(ctx, http.MethodGet, "/sizes/"+url.PathEscape(sizeID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StockClient) DecreaseStock(ctx context.Context, sizeID string, quantity int) error {
	return c.http.do(ctx, http.MethodPost, "/stock/decrease", stockChange{SizeID: sizeID, Quantity: quantity}, nil)
}

func (c *StockClient) IncreaseStock(ctx context.Context, sizeID string, quantity int) error {
	return c.http.do(ctx, http.MethodPost, "/stock/increase", stockChange{SizeID: sizeID, Quantity: quantity}, nil)
}

func (c *StockClient) ProductIDsByShopOwner(ctx context.Context, shopOwnerID string) ([]string, error) {
	var out []string
	if err := c.http.do(ctx, http.MethodGet, "/products/shop-owner/"+url.PathEscape(shopOwnerID)+"/ids", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StockClient) RemoveCartItems(ctx context.Context, userID string, lines []CartLine) error {
	if len(lines) == 0 {
		return nil
	}
	body := struct {
		UserID string     `json:"userId"`
		Items  []CartLine `json:"items"`
	}{UserID: userID, Items: lines}
	return c.http.do(ctx, http.MethodPost, "/cart/remove-items", body, nil)
}
