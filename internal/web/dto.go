package web

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
)

type moneyDTO struct {
	Amount   string `json:"amount" validate:"required,numeric"`
	Currency string `json:"currency" validate:"required,alphanum,max=12"`
}

func (m moneyDTO) toMoney() (domain.Money, error) {
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return domain.Money{}, domain.ErrValidation.Newf("amount %q is not a decimal", m.Amount)
	}
	return domain.NewMoney(amount, domain.NewCurrency(m.Currency))
}

type quoteRequest struct {
	From          string  `json:"from" validate:"required,alphanum,max=12"`
	To            string  `json:"to" validate:"required,alphanum,max=12"`
	SendAmount    *string `json:"send_amount,omitempty" validate:"omitempty,numeric"`
	ReceiveAmount *string `json:"receive_amount,omitempty" validate:"omitempty,numeric"`
	FeePercent    *string `json:"fee_percent,omitempty" validate:"omitempty,numeric"`
	SpreadPercent *string `json:"spread_percent,omitempty" validate:"omitempty,numeric"`
}

type rateResponse struct {
	From domain.Currency `json:"from"`
	To   domain.Currency `json:"to"`
	Rate decimal.Decimal `json:"rate"`
}

type createEscrowRequest struct {
	// Seller username or id.
	Seller      string  `json:"seller" validate:"required,max=64"`
	Amount      string  `json:"amount" validate:"required,numeric"`
	Currency    string  `json:"currency" validate:"required,alphanum,max=12"`
	FeePercent  *string `json:"fee_percent,omitempty" validate:"omitempty,numeric"`
	Description string  `json:"description,omitempty" validate:"max=500"`
}

type evidenceDTO struct {
	Name        string `json:"name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required,max=100"`
	// Data base64 encoded file content.
	Data string `json:"data" validate:"required,base64"`
}

type disputeRequest struct {
	Reason   string        `json:"reason" validate:"required,max=2000"`
	Evidence []evidenceDTO `json:"evidence,omitempty" validate:"omitempty,dive"`
}

type resolveRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=release refund"`
}

type initiateRequest struct {
	CounterpartyID     string `json:"counterparty_id" validate:"required,max=64"`
	Amount             string `json:"amount" validate:"required,numeric"`
	Currency           string `json:"currency" validate:"required,alphanum,max=12"`
	DestinationAddress string `json:"destination_address" validate:"required,max=128"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type escrowList struct {
	Escrows []*domain.EscrowTransaction `json:"escrows"`
}

type settlementList struct {
	Settlements []*domain.MultiSigTransaction `json:"settlements"`
}

type walletResponse struct {
	OwnerID  string                 `json:"owner_id"`
	Accounts []domain.WalletAccount `json:"accounts"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseOptionalDecimal(field string, v *string) (decimal.NullDecimal, error) {
	if v == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return decimal.NullDecimal{}, domain.ErrValidation.Newf("%s %q is not a decimal", field, *v)
	}
	return decimal.NewNullDecimal(d), nil
}
