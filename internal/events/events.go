package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies one of the marketplace contract's event types.
type Kind string

const (
	KindCollectionDeployed  Kind = "CollectionDeployed"
	KindMint                Kind = "Mint"
	KindMarketItemCreated   Kind = "MarketItemCreated"
	KindMarketItemCancelled Kind = "MarketItemCancelled"
	KindSaleMade            Kind = "SaleMade"
	KindOrderMade           Kind = "OrderMade"
	KindOrderItemCancelled  Kind = "OrderItemCancelled"
	KindOrderItemEnded      Kind = "OrderItemEnded"
	KindOrderItemRejected   Kind = "OrderItemRejected"
)

// Event is a decoded marketplace log with named, typed arguments.
// Exactly one concrete type exists per event kind.
type Event interface {
	Kind() Kind
}

// CollectionDeployed is emitted when a new NFT collection contract is deployed.
type CollectionDeployed struct {
	Collection common.Address
	Owner      common.Address
	Timestamp  *big.Int
	Name       string
	Category   string
	Symbol     string
}

func (CollectionDeployed) Kind() Kind { return KindCollectionDeployed }

// Mint is emitted when a token is minted into a collection.
type Mint struct {
	Collection common.Address
	TokenID    *big.Int
	Timestamp  *big.Int
	TokenURI   string
	Owner      common.Address
}

func (Mint) Kind() Kind { return KindMint }

// MarketItemCreated is emitted when a fixed-price sale listing is opened.
type MarketItemCreated struct {
	Creator    common.Address
	Collection common.Address
	TokenID    *big.Int
	Currency   common.Address
	Price      *big.Int
	MarketID   common.Hash
	Timestamp  *big.Int
}

func (MarketItemCreated) Kind() Kind { return KindMarketItemCreated }

// MarketItemCancelled is emitted when an open sale listing is withdrawn.
type MarketItemCancelled struct {
	MarketID  common.Hash
	Timestamp *big.Int
}

func (MarketItemCancelled) Kind() Kind { return KindMarketItemCancelled }

// SaleMade is emitted when a listing is purchased.
type SaleMade struct {
	MarketID   common.Hash
	Seller     common.Address
	Buyer      common.Address
	TokenID    *big.Int
	Collection common.Address
	Currency   common.Address
	Amount     *big.Int
	Timestamp  *big.Int
}

func (SaleMade) Kind() Kind { return KindSaleMade }

// OrderMade is emitted when a buyer places a bid/offer against a token.
type OrderMade struct {
	Creator     common.Address
	To          common.Address
	Collection  common.Address
	TokenID     *big.Int
	BidCurrency common.Address
	Amount      *big.Int
	OrderID     common.Hash
}

func (OrderMade) Kind() Kind { return KindOrderMade }

// OrderItemCancelled is emitted when the bidder withdraws an open order.
type OrderItemCancelled struct {
	OrderID   common.Hash
	Timestamp *big.Int
}

func (OrderItemCancelled) Kind() Kind { return KindOrderItemCancelled }

// OrderItemEnded is emitted when the token owner accepts an order.
type OrderItemEnded struct {
	OrderID   common.Hash
	Timestamp *big.Int
}

func (OrderItemEnded) Kind() Kind { return KindOrderItemEnded }

// OrderItemRejected is emitted when the token owner rejects an order.
type OrderItemRejected struct {
	OrderID   common.Hash
	Timestamp *big.Int
}

func (OrderItemRejected) Kind() Kind { return KindOrderItemRejected }
