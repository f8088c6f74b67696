// Package indexer projects decoded marketplace events into the entity store.
// One MarketIndexer instance runs per configured network; handlers are safe
// for concurrent use and idempotent under duplicate delivery.
package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mintline/marketwatch/internal/currency"
	"github.com/mintline/marketwatch/internal/events"
	"github.com/mintline/marketwatch/internal/logger"
	"github.com/mintline/marketwatch/internal/notify"
	"github.com/mintline/marketwatch/internal/rpc"
	"github.com/mintline/marketwatch/internal/store"
)

// collectionABI covers the single read-only getter the indexer needs from a
// deployed collection contract.
const collectionABI = `[
	{"type":"function","name":"_collectionURI","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// MarketIndexer applies marketplace events for one network to the store.
type MarketIndexer struct {
	network    string
	store      *store.Store
	normalizer *currency.Normalizer
	notifier   notify.Notifier
	caller     rpc.Caller
	abi        abi.ABI
	log        *logger.Logger
}

// NewMarketIndexer creates the event handler set for a single network.
func NewMarketIndexer(
	network string,
	st *store.Store,
	normalizer *currency.Normalizer,
	notifier notify.Notifier,
	caller rpc.Caller,
	log *logger.Logger,
) (*MarketIndexer, error) {
	parsed, err := abi.JSON(strings.NewReader(collectionABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse collection ABI: %w", err)
	}

	return &MarketIndexer{
		network:    network,
		store:      st,
		normalizer: normalizer,
		notifier:   notifier,
		caller:     caller,
		abi:        parsed,
		log:        log,
	}, nil
}

// Handle applies one decoded event. Returned errors are retryable from the
// caller's perspective; permanent conditions (duplicates, terminal-state
// transitions) are logged and swallowed here.
func (ix *MarketIndexer) Handle(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.CollectionDeployed:
		return ix.handleCollectionDeployed(ctx, e)
	case events.Mint:
		return ix.handleMint(ctx, e)
	case events.MarketItemCreated:
		return ix.handleMarketItemCreated(ctx, e)
	case events.MarketItemCancelled:
		return ix.handleMarketItemCancelled(ctx, e)
	case events.SaleMade:
		return ix.handleSaleMade(ctx, e)
	case events.OrderMade:
		return ix.handleOrderMade(ctx, e)
	case events.OrderItemEnded:
		return ix.handleOrderItemEnded(ctx, e)
	case events.OrderItemCancelled:
		return ix.handleOrderItemCancelled(ctx, e)
	case events.OrderItemRejected:
		return ix.handleOrderItemRejected(ctx, e)
	default:
		return fmt.Errorf("no handler for event kind %q", ev.Kind())
	}
}

func (ix *MarketIndexer) handleCollectionDeployed(ctx context.Context, e events.CollectionDeployed) error {
	uri, err := ix.collectionURI(ctx, e.Collection)
	if err != nil {
		return err
	}

	created, err := ix.store.CreateCollection(ctx, &store.Collection{
		Network:      ix.network,
		CollectionID: e.Collection,
		Name:         e.Name,
		Symbol:       e.Symbol,
		Category:     e.Category,
		Owner:        e.Owner,
		MetadataURI:  uri,
		CreatedAt:    unixSeconds(e.Timestamp),
	})
	if err != nil {
		return err
	}
	if !created {
		ix.log.Debugf("Collection %s already recorded, skipping", e.Collection.Hex())
	}

	return nil
}

func (ix *MarketIndexer) handleMint(ctx context.Context, e events.Mint) error {
	created, err := ix.store.CreateNFT(ctx, &store.NFT{
		Network:      ix.network,
		CollectionID: e.Collection,
		TokenID:      e.TokenID.String(),
		TokenURI:     e.TokenURI,
		Owner:        e.Owner,
		MintedAt:     unixSeconds(e.Timestamp),
	})
	if err != nil {
		return err
	}
	if !created {
		ix.log.Debugf("NFT %s/%s already recorded, skipping", e.Collection.Hex(), e.TokenID)
	}

	return nil
}

func (ix *MarketIndexer) handleMarketItemCreated(ctx context.Context, e events.MarketItemCreated) error {
	price, err := ix.normalizer.Normalize(ctx, e.Price, e.Currency)
	if err != nil {
		return err
	}

	created, err := ix.store.CreateSale(ctx, &store.Sale{
		Network:      ix.network,
		MarketID:     e.MarketID,
		CollectionID: e.Collection,
		TokenID:      e.TokenID.String(),
		Creator:      e.Creator,
		Currency:     e.Currency,
		Price:        price,
		Status:       store.SaleOnGoing,
		EventTime:    unixSeconds(e.Timestamp),
	})
	if err != nil {
		return err
	}
	if !created {
		ix.log.Debugf("Sale %s already recorded, skipping", e.MarketID.Hex())
	}

	return nil
}

func (ix *MarketIndexer) handleMarketItemCancelled(ctx context.Context, e events.MarketItemCancelled) error {
	applied, err := ix.store.CancelSale(ctx, ix.network, e.MarketID, unixSeconds(e.Timestamp))
	if store.IsNotFound(err) {
		ix.log.Warnf("Cancel for unknown sale %s, discarding", e.MarketID.Hex())
		return nil
	}
	if err != nil {
		return err
	}
	if !applied {
		ix.log.Infof("Sale %s already terminal, discarding cancel", e.MarketID.Hex())
	}

	return nil
}

func (ix *MarketIndexer) handleSaleMade(ctx context.Context, e events.SaleMade) error {
	sale, applied, err := ix.store.FinalizeSale(ctx, ix.network, e.MarketID, e.Buyer, unixSeconds(e.Timestamp))
	if err != nil {
		return err
	}
	if !applied {
		ix.log.Infof("Sale %s already terminal, discarding finalize", e.MarketID.Hex())
		return nil
	}

	amount, name, err := ix.describeAmount(ctx, e.Amount, e.Currency)
	if err != nil {
		// The transition is already committed; losing the notification is
		// preferable to replaying the whole event.
		ix.log.Warnf("Skipping sale notification for %s: %v", e.MarketID.Hex(), err)
		return nil
	}

	ix.dispatch(ctx, e.Seller, "Sale Made",
		fmt.Sprintf("Account %s has purchased NFT with ID %s for %s %s",
			e.Buyer.Hex(), sale.TokenID, amount, name))

	return nil
}

func (ix *MarketIndexer) handleOrderMade(ctx context.Context, e events.OrderMade) error {
	amount, err := ix.normalizer.Normalize(ctx, e.Amount, e.BidCurrency)
	if err != nil {
		return err
	}

	created, err := ix.store.CreateOrder(ctx, &store.Order{
		Network:      ix.network,
		OrderID:      e.OrderID,
		Creator:      e.Creator,
		Counterparty: e.To,
		CollectionID: e.Collection,
		TokenID:      e.TokenID.String(),
		BidCurrency:  e.BidCurrency,
		Amount:       amount,
		Status:       store.OrderStarted,
		EventTime:    time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	if !created {
		ix.log.Debugf("Order %s already recorded, skipping", e.OrderID.Hex())
		return nil
	}

	// The offer notification goes to whoever holds the token right now.
	nft, err := ix.store.GetNFT(ctx, ix.network, e.Collection, e.TokenID.String())
	if err != nil {
		ix.log.Warnf("Skipping offer notification for order %s, token owner unknown: %v", e.OrderID.Hex(), err)
		return nil
	}

	name, err := ix.currencyName(ctx, e.BidCurrency)
	if err != nil {
		ix.log.Warnf("Skipping offer notification for order %s: %v", e.OrderID.Hex(), err)
		return nil
	}

	ix.dispatch(ctx, nft.Owner, "Offer Made",
		fmt.Sprintf("Account %s is offering %s %s for NFT with ID %s",
			e.Creator.Hex(), amount, name, e.TokenID))

	return nil
}

func (ix *MarketIndexer) handleOrderItemEnded(ctx context.Context, e events.OrderItemEnded) error {
	order, applied, err := ix.store.AcceptOrder(ctx, ix.network, e.OrderID, unixSeconds(e.Timestamp))
	if err != nil {
		return err
	}
	if !applied {
		ix.log.Infof("Order %s already terminal, discarding accept", e.OrderID.Hex())
		return nil
	}

	name, err := ix.currencyName(ctx, order.BidCurrency)
	if err != nil {
		ix.log.Warnf("Skipping accept notification for order %s: %v", e.OrderID.Hex(), err)
		return nil
	}

	ix.dispatch(ctx, order.Creator, "Offer Accepted",
		fmt.Sprintf("Your offer of %s %s for NFT with ID %s has been accepted",
			order.Amount, name, order.TokenID))

	return nil
}

func (ix *MarketIndexer) handleOrderItemCancelled(ctx context.Context, e events.OrderItemCancelled) error {
	return ix.terminateOrder(ctx, e.OrderID, store.OrderCancelled, unixSeconds(e.Timestamp))
}

func (ix *MarketIndexer) handleOrderItemRejected(ctx context.Context, e events.OrderItemRejected) error {
	return ix.terminateOrder(ctx, e.OrderID, store.OrderRejected, unixSeconds(e.Timestamp))
}

func (ix *MarketIndexer) terminateOrder(ctx context.Context, orderID common.Hash, status store.OrderStatus, eventTime int64) error {
	applied, err := ix.store.TerminateOrder(ctx, ix.network, orderID, status, eventTime)
	if store.IsNotFound(err) {
		ix.log.Warnf("%s for unknown order %s, discarding", status, orderID.Hex())
		return nil
	}
	if err != nil {
		return err
	}
	if !applied {
		ix.log.Infof("Order %s already terminal, discarding %s", orderID.Hex(), status)
	}

	return nil
}

// collectionURI reads the metadata URI getter on a freshly deployed
// collection contract.
func (ix *MarketIndexer) collectionURI(ctx context.Context, collection common.Address) (string, error) {
	data, err := ix.abi.Pack("_collectionURI")
	if err != nil {
		return "", fmt.Errorf("failed to pack _collectionURI call: %w", err)
	}

	output, err := ix.caller.CallContract(ctx, ethereum.CallMsg{To: &collection, Data: data})
	if err != nil {
		return "", err
	}

	var uri string
	if err := ix.abi.UnpackIntoInterface(&uri, "_collectionURI", output); err != nil {
		return "", fmt.Errorf("failed to unpack _collectionURI result: %w", err)
	}

	return uri, nil
}

// describeAmount renders a raw on-chain amount as a normalized value plus the
// currency's display name.
func (ix *MarketIndexer) describeAmount(ctx context.Context, raw *big.Int, token common.Address) (string, string, error) {
	amount, err := ix.normalizer.Normalize(ctx, raw, token)
	if err != nil {
		return "", "", err
	}

	name, err := ix.currencyName(ctx, token)
	if err != nil {
		return "", "", err
	}

	return amount, name, nil
}

func (ix *MarketIndexer) currencyName(ctx context.Context, token common.Address) (string, error) {
	if token == currency.NativeCurrency {
		return currency.NativeName, nil
	}
	return ix.normalizer.TokenName(ctx, token)
}

// dispatch sends a notification without letting a delivery failure reach the
// transition path.
func (ix *MarketIndexer) dispatch(ctx context.Context, account common.Address, title, message string) {
	if err := ix.notifier.Notify(ctx, account.Hex(), title, message); err != nil {
		ix.log.Warnf("Notification dropped: %v", err)
	}
}

func unixSeconds(t *big.Int) int64 {
	if t == nil {
		return 0
	}
	return t.Int64()
}
