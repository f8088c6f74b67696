package store

import (
	"github.com/ethereum/go-ethereum/common"
)

// SaleStatus is the lifecycle state of a marketplace listing.
type SaleStatus string

const (
	SaleOnGoing   SaleStatus = "ON_GOING"
	SaleFinalized SaleStatus = "FINALIZED"
	SaleCancelled SaleStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed from this status.
func (s SaleStatus) Terminal() bool {
	return s == SaleFinalized || s == SaleCancelled
}

// OrderStatus is the lifecycle state of a bid placed on an NFT.
type OrderStatus string

const (
	OrderStarted   OrderStatus = "STARTED"
	OrderAccepted  OrderStatus = "ACCEPTED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
)

// Terminal reports whether no further transitions are allowed from this status.
func (s OrderStatus) Terminal() bool {
	return s != OrderStarted
}

// Collection is a deployed NFT collection contract tracked on a network.
type Collection struct {
	Network      string         `meddler:"network"`
	CollectionID common.Address `meddler:"collection_id,address"`
	Name         string         `meddler:"name"`
	Symbol       string         `meddler:"symbol"`
	Category     string         `meddler:"category"`
	Owner        common.Address `meddler:"owner,address"`
	MetadataURI  string         `meddler:"metadata_uri"`
	CreatedAt    int64          `meddler:"created_at"`
}

// NFT is a single minted token. TokenID is the decimal string form of the
// uint256 token id, which does not fit in an int64.
type NFT struct {
	Network      string         `meddler:"network"`
	CollectionID common.Address `meddler:"collection_id,address"`
	TokenID      string         `meddler:"token_id"`
	TokenURI     string         `meddler:"token_uri"`
	Owner        common.Address `meddler:"owner,address"`
	MintedAt     int64          `meddler:"minted_at"`
}

// Sale is a fixed-price marketplace listing. Price is the human-readable
// amount already normalized against the currency decimals.
type Sale struct {
	Network      string         `meddler:"network"`
	MarketID     common.Hash    `meddler:"market_id,hash"`
	CollectionID common.Address `meddler:"collection_id,address"`
	TokenID      string         `meddler:"token_id"`
	Creator      common.Address `meddler:"creator,address"`
	Currency     common.Address `meddler:"currency,address"`
	Price        string         `meddler:"price"`
	Status       SaleStatus     `meddler:"status"`
	EventTime    int64          `meddler:"event_time"`
}

// Order is a bid placed by Creator on an NFT currently owned by Counterparty.
// Amount is the human-readable bid amount normalized against BidCurrency.
type Order struct {
	Network      string         `meddler:"network"`
	OrderID      common.Hash    `meddler:"order_id,hash"`
	Creator      common.Address `meddler:"creator,address"`
	Counterparty common.Address `meddler:"counterparty,address"`
	CollectionID common.Address `meddler:"collection_id,address"`
	TokenID      string         `meddler:"token_id"`
	BidCurrency  common.Address `meddler:"bid_currency,address"`
	Amount       string         `meddler:"amount"`
	Status       OrderStatus    `meddler:"status"`
	EventTime    int64          `meddler:"event_time"`
}

// PushSubscription is a web-push subscription registered by an account.
type PushSubscription struct {
	AccountID string `meddler:"account_id"`
	Endpoint  string `meddler:"endpoint"`
	Keys      string `meddler:"keys"`
	CreatedAt int64  `meddler:"created_at"`
}
