package domain

import (
	"fmt"
	"time"
)

// WalletAccount balance of one owner in one currency.
type WalletAccount struct {
	OwnerID   string    `json:"owner_id"`
	Balance   Money     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key identifies the account in storage.
func (w WalletAccount) Key() string {
	return AccountKey(w.OwnerID, w.Balance.Currency)
}

// AccountKey builds the storage key for an owner/currency pair.
func AccountKey(ownerID string, currency Currency) string {
	return fmt.Sprintf("%s:%s", ownerID, currency)
}

// User resolved platform identity.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}
