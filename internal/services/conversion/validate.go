package conversion

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
)

// Validate applies the strict request contract that Solve deliberately tolerates.
func Validate(in Input) error {
	if in.FromCurrency == "" || in.ToCurrency == "" {
		return domain.ErrValidation.New("from and to currencies are required")
	}

	switch {
	case in.SendAmount.Valid && in.ReceiveAmount.Valid:
		return domain.ErrValidation.New("provide either send_amount or receive_amount, not both")
	case !in.SendAmount.Valid && !in.ReceiveAmount.Valid:
		return domain.ErrValidation.New("send_amount or receive_amount is required")
	case in.SendAmount.Valid && !in.SendAmount.Decimal.IsPositive():
		return domain.ErrValidation.Newf("send_amount must be positive, got %s", in.SendAmount.Decimal)
	case in.ReceiveAmount.Valid && !in.ReceiveAmount.Decimal.IsPositive():
		return domain.ErrValidation.Newf("receive_amount must be positive, got %s", in.ReceiveAmount.Decimal)
	}

	if err := percentInRange("fee_percent", in.FeePercent); err != nil {
		return err
	}
	return percentInRange("spread_percent", in.SpreadPercent)
}

func percentInRange(name string, p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThanOrEqual(hundred) {
		return domain.ErrValidation.Newf("%s must be in [0, 100), got %s", name, p)
	}
	return nil
}
