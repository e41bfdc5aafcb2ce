package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCoversEveryCode(t *testing.T) {
	cases := map[Code]struct {
		status    int
		retryable bool
		details   bool
	}{
		CodeValidation:    {http.StatusBadRequest, false, true},
		CodeUnauthorized:  {http.StatusUnauthorized, false, false},
		CodeForbidden:     {http.StatusForbidden, false, false},
		CodeNotFound:      {http.StatusNotFound, false, false},
		CodeConflict:      {http.StatusConflict, false, false},
		CodeStateConflict: {http.StatusUnprocessableEntity, false, true},
		CodeIdempotency:   {http.StatusConflict, false, true},
		CodeInsufficient:  {http.StatusUnprocessableEntity, false, true},
		CodeInternal:      {http.StatusInternalServerError, true, false},
		CodeDependency:    {http.StatusServiceUnavailable, true, true},
	}
	require.Len(t, catalog, len(cases))

	for code, want := range cases {
		t.Run(string(code), func(t *testing.T) {
			m := MetadataFor(code)
			assert.Equal(t, want.status, m.HTTPStatus)
			assert.Equal(t, want.retryable, m.Retryable)
			assert.Equal(t, want.details, m.DetailsAllowed)
			assert.NotEmpty(t, m.PublicMessage)
		})
	}
}

func TestUnknownCodeMapsToInternal(t *testing.T) {
	assert.Equal(t, catalog[CodeInternal], MetadataFor("NO_SUCH_CODE"))
}

func TestErrorAccessors(t *testing.T) {
	err := New(CodeStateConflict, "order already delivered").
		WithDetails(map[string]string{"status": "DELIVERED"})

	assert.Equal(t, CodeStateConflict, err.Code())
	assert.Equal(t, "order already delivered", err.Message())
	assert.Equal(t, map[string]string{"status": "DELIVERED"}, err.Details())
	assert.Equal(t, "STATE_CONFLICT: order already delivered", err.Error())
	assert.Nil(t, err.Unwrap())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Empty(t, nilErr.Message())
	assert.Nil(t, nilErr.WithDetails("x"))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "stock service unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeDependency, err.Code())
}

func TestAsAndIsCodeWalkTheChain(t *testing.T) {
	inner := New(CodeInsufficient, "amount exceeds available balance")
	outer := fmt.Errorf("request payout: %w", Wrap(CodeConflict, inner, "payout rejected"))

	require.NotNil(t, As(outer))
	assert.Equal(t, CodeConflict, As(outer).Code())
	assert.True(t, IsCode(outer, CodeConflict))
	assert.True(t, IsCode(outer, CodeInsufficient))
	assert.False(t, IsCode(outer, CodeNotFound))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeInternal))
	assert.Nil(t, As(nil))
}

func TestDumpReadsPgxErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_shop_ledger_entries_ref_txn", TableName: "shop_ledger_entries"}
	err := Wrap(CodeConflict, fmt.Errorf("insert entry: %w", pgErr), "duplicate entry")

	d := Dump(err)
	assert.Equal(t, CodeConflict, d.Code)
	assert.Equal(t, "23505", d.PGCode)
	assert.Equal(t, "ux_shop_ledger_entries_ref_txn", d.PGConstraint)
	assert.Equal(t, "shop_ledger_entries", d.PGTable)
	assert.Len(t, d.Chain, 3)
}

func TestDumpReadsLibPqErrors(t *testing.T) {
	err := fmt.Errorf("lock wallet: %w", &pq.Error{Code: "40P01", Message: "deadlock detected", Table: "buyer_wallets"})

	d := Dump(err)
	assert.Empty(t, d.Code)
	assert.Equal(t, "40P01", d.PGCode)
	assert.Equal(t, "deadlock detected", d.PGMessage)
	assert.Equal(t, "buyer_wallets", d.PGTable)
}

func TestDumpNil(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))
}
