package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

type lineItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type payoutBody struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Bank   string          `json:"bankName" validate:"required,max=8"`
	Items  []lineItem      `json:"items" validate:"dive"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	out, ok := typed.Details().(map[string]string)
	require.True(t, ok, "details %T", typed.Details())
	return out
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	var dest payoutBody
	err := DecodeJSONBody(post(`{"amount":"150000.50","bankName":"VCB","items":[{"productId":"p1","quantity":2}]}`), &dest)
	require.NoError(t, err)
	assert.True(t, dest.Amount.Equal(decimal.RequireFromString("150000.50")))
	assert.Equal(t, "VCB", dest.Bank)
	require.Len(t, dest.Items, 1)
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	var dest payoutBody
	err := DecodeJSONBody(post(`{"amount":0,"bankName":"a very long bank","items":[{"quantity":0}]}`), &dest)

	fields := details(t, err)
	assert.Equal(t, "must be greater than 0", fields["amount"])
	assert.Equal(t, "must be at most 8", fields["bankName"])
	assert.Equal(t, "is required", fields["items[0].productId"])
	assert.Equal(t, "must be greater than 0", fields["items[0].quantity"])
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":      ``,
		"syntax":     `{"amount":`,
		"unknown":    `{"amount":1,"bankName":"x","surprise":true}`,
		"type":       `{"amount":1,"bankName":7}`,
		"two docs":   `{"amount":1,"bankName":"x"}{"amount":2}`,
		"non-object": `[1,2]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var dest payoutBody
			err := DecodeJSONBody(post(body), &dest)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestDecodeJSONBodyEnforcesSizeLimit(t *testing.T) {
	body := `{"bankName":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	var dest payoutBody
	err := DecodeJSONBody(post(body), &dest)
	require.Error(t, err)
	assert.Equal(t, "request body too large", pkgerrors.As(err).Message())
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=abc&big=500", nil)

	v, err := ParseQueryInt(req, "limit", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	v, err = ParseQueryInt(req, "missing", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	_, err = ParseQueryInt(req, "bad", 10, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseQueryInt(req, "big", 10, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello \n", 0))
	assert.Equal(t, "abc", SanitizeString("abcdef", 3))
	assert.Equal(t, "Ngân", SanitizeString(" Ngân hàng ", 4))
	assert.Equal(t, "a", SanitizeString("a b", 2))
}
