package gateways

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// IdentityClient talks to the user service for addresses, shops, plans and wallets.
type IdentityClient struct {
	http *jsonClient
}

func NewIdentityClient(baseURL string, opts ...Option) (*IdentityClient, error) {
	c, err := newJSONClient("user-service", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &IdentityClient{http: c}, nil
}

func (c *IdentityClient) GetAddress(ctx context.Context, addressID string) (*Address, error) {
	var out Address
	if err := c.http.do(ctx, http.MethodGet, "/addresses/"+url.PathEscape(addressID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *IdentityClient) GetShopOwner(ctx context.Context, userID string) (*ShopOwner, error) {
	var out ShopOwner
	if err := c.http.do(ctx, http.MethodGet, "/shop-owners/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *IdentityClient) GetSubscription(ctx context.Context, shopOwnerID string) (*Subscription, error) {
	var out Subscription
	if err := c.http.do(ctx, http.MethodGet, "/subscriptions/shop/"+url.PathEscape(shopOwnerID), nil, &out); err != nil {
		return nil, err
	}
	if out.ShopOwnerID == "" {
		out.ShopOwnerID = shopOwnerID
	}
	return &out, nil
}

func (c *IdentityClient) CoinBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := c.http.do(ctx, http.MethodGet, "/coins/"+url.PathEscape(userID), nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

func (c *IdentityClient) ChargeWallet(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	body := struct {
		UserID    string          `json:"userId"`
		Amount    decimal.Decimal `json:"amount"`
		Reference string          `json:"reference"`
	}{UserID: userID, Amount: amount, Reference: ref}
	return c.http.do(ctx, http.MethodPost, "/wallets/charge", body, nil)
}
