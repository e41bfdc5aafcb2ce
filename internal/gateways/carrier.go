package gateways

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// CarrierClient quotes fees and books labels with the shipping carrier adapter.
type CarrierClient struct {
	http *jsonClient
}

func NewCarrierClient(baseURL string, opts ...Option) (*CarrierClient, error) {
	c, err := newJSONClient("carrier", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &CarrierClient{http: c}, nil
}

func (c *CarrierClient) QuoteFee(ctx context.Context, req ShippingRequest) (decimal.Decimal, error) {
	var out struct {
		Total decimal.Decimal `json:"total"`
	}
	if err := c.http.do(ctx, http.MethodPost, "/fee", req, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Total, nil
}

func (c *CarrierClient) CreateLabel(ctx context.Context, req ShippingRequest) (*ShippingLabel, error) {
	var out ShippingLabel
	if err := c.http.do(ctx, http.MethodPost, "/orders", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
