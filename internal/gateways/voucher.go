package gateways

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// VoucherClient validates shop and platform vouchers.
type VoucherClient struct {
	http *jsonClient
}

func NewVoucherClient(baseURL string, opts ...Option) (*VoucherClient, error) {
	c, err := newJSONClient("voucher-service", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &VoucherClient{http: c}, nil
}

func (c *VoucherClient) ValidateShopVoucher(ctx context.Context, code, shopOwnerID string, subtotal decimal.Decimal) (*ShopVoucherResult, error) {
	body := struct {
		Code        string          `json:"code"`
		ShopOwnerID string          `json:"shopOwnerId"`
		OrderAmount decimal.Decimal `json:"orderAmount"`
	}{Code: code, ShopOwnerID: shopOwnerID, OrderAmount: subtotal}
	var out ShopVoucherResult
	if err := c.http.do(ctx, http.MethodPost, "/shop/validate", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *VoucherClient) PlatformVoucher(ctx context.Context, code string) (*PlatformVoucher, error) {
	var out PlatformVoucher
	if err := c.http.do(ctx, http.MethodGet, "/platform/"+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *VoucherClient) VoucherShopOwner(ctx context.Context, voucherID string) (string, error) {
	var out struct {
		ShopOwnerID string `json:"shopOwnerId"`
	}
	if err := c.http.do(ctx, http.MethodGet, "/"+url.PathEscape(voucherID)+"/shop-owner", nil, &out); err != nil {
		return "", err
	}
	return out.ShopOwnerID, nil
}
