package clients

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// HyperliquidClient holds an SDK exchange handle bound to a signing key.
type HyperliquidClient struct {
	exchange    *hyperliquid.Exchange
	accountAddr string
}

// NewHyperliquidClient derives the account address from privateKeyHex and builds the exchange.
func NewHyperliquidClient(privateKeyHex, baseURL string) (*HyperliquidClient, error) {
	privateKey, accountAddr, err := parseKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	// Info and SpotMeta are fetched lazily by the SDK
	ex := hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidClient{exchange: ex, accountAddr: accountAddr}, nil
}

// Info returns the public market-data endpoint.
func (c *HyperliquidClient) Info() *hyperliquid.Info { return c.exchange.Info() }

// AccountAddress returns the address derived from the signing key.
func (c *HyperliquidClient) AccountAddress() string { return c.accountAddr }

func parseKey(privateKeyHex string) (*ecdsa.PrivateKey, string, error) {
	key := strings.TrimPrefix(strings.TrimPrefix(privateKeyHex, "0x"), "0X")

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, "", errors.Wrap(err, "parse hyperliquid private key")
	}

	pubECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, "", errors.New("error casting public key to ECDSA")
	}
	return privateKey, crypto.PubkeyToAddress(*pubECDSA).Hex(), nil
}
