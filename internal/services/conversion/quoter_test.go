package conversion

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/services/rates"
	"go.uber.org/zap"
)

func newQuoter() *Quoter {
	src := rates.NewStatic(map[domain.Pair]decimal.Decimal{
		{From: "USD", To: "EUR"}: d("0.9"),
	})
	return NewQuoter(src, Fees{FeePercent: d("2"), SpreadPercent: d("1")}, zap.NewNop())
}

func TestQuoter_AppliesDefaults(t *testing.T) {
	q, err := newQuoter().Quote(context.Background(), Request{
		SendAmount:   some("100"),
		FromCurrency: "USD",
		ToCurrency:   "EUR",
	})
	require.NoError(t, err)

	assert.Equal(t, "2", q.FeePercent.String())
	assert.Equal(t, "87.32", q.ReceiveAmount.String())
}

func TestQuoter_OverridesFees(t *testing.T) {
	q, err := newQuoter().Quote(context.Background(), Request{
		SendAmount:    some("100"),
		FromCurrency:  "USD",
		ToCurrency:    "EUR",
		FeePercent:    decimal.NewNullDecimal(decimal.Zero),
		SpreadPercent: decimal.NewNullDecimal(decimal.Zero),
	})
	require.NoError(t, err)

	assert.Equal(t, "90", q.ReceiveAmount.String())
}

func TestQuoter_Errors(t *testing.T) {
	quoter := newQuoter()

	_, err := quoter.Quote(context.Background(), Request{FromCurrency: "USD", ToCurrency: "EUR"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = quoter.Quote(context.Background(), Request{SendAmount: some("1"), FromCurrency: "USD", ToCurrency: "JPY"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
