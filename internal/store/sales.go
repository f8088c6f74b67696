package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

// CreateSale records a new listing with status ON_GOING. It returns false
// when the market id was already recorded for this network.
func (s *Store) CreateSale(ctx context.Context, sale *Sale) (bool, error) {
	const query = `
		INSERT OR IGNORE INTO sales
			(network, market_id, collection_id, token_id, creator, currency, price, status, event_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		sale.Network, sale.MarketID.Hex(), sale.CollectionID.Hex(), sale.TokenID,
		sale.Creator.Hex(), sale.Currency.Hex(), sale.Price, string(SaleOnGoing), sale.EventTime)
	if err != nil {
		return false, storeErr("create sale", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("create sale", err)
	}

	return rows > 0, nil
}

// GetSale retrieves a listing by market id.
func (s *Store) GetSale(ctx context.Context, network string, marketID common.Hash) (*Sale, error) {
	const query = `SELECT * FROM sales WHERE network = ? AND market_id = ?`

	sale := new(Sale)
	err := meddler.QueryRow(s.db, sale, query, network, marketID.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr("get sale", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get sale", err)
	}

	return sale, nil
}

// ListSalesByStatus returns all listings for a network in the given status.
func (s *Store) ListSalesByStatus(ctx context.Context, network string, status SaleStatus) ([]*Sale, error) {
	const query = `SELECT * FROM sales WHERE network = ? AND status = ? ORDER BY event_time ASC, market_id ASC`

	var sales []*Sale
	if err := meddler.QueryAll(s.db, &sales, query, network, string(status)); err != nil {
		return nil, storeErr("list sales by status", err)
	}

	return sales, nil
}

// CancelSale moves an ON_GOING listing to CANCELLED. It returns false without
// error when the listing is already in a terminal state, so replayed events
// are no-ops. An unknown market id is reported as ErrNotFound.
func (s *Store) CancelSale(ctx context.Context, network string, marketID common.Hash, eventTime int64) (bool, error) {
	const query = `
		UPDATE sales SET status = ?, event_time = ?
		WHERE network = ? AND market_id = ? AND status = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		string(SaleCancelled), eventTime, network, marketID.Hex(), string(SaleOnGoing))
	if err != nil {
		return false, storeErr("cancel sale", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("cancel sale", err)
	}
	if rows > 0 {
		return true, nil
	}

	// Distinguish an already-terminal listing from one we never saw.
	if _, err := s.GetSale(ctx, network, marketID); err != nil {
		return false, err
	}

	return false, nil
}

// FinalizeSale moves an ON_GOING listing to FINALIZED and transfers the sold
// token to the buyer in the same transaction. It returns the listing as it was
// before the update, plus whether the transition was applied. A listing
// already in a terminal state yields (sale, false, nil) and leaves ownership
// untouched.
func (s *Store) FinalizeSale(ctx context.Context, network string, marketID common.Hash, buyer common.Address, eventTime int64) (*Sale, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, storeErr("finalize sale", err)
	}
	defer s.rollback(tx)

	const selectQuery = `SELECT * FROM sales WHERE network = ? AND market_id = ?`

	sale := new(Sale)
	err = meddler.QueryRow(tx, sale, selectQuery, network, marketID.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, storeErr("finalize sale", ErrNotFound)
	}
	if err != nil {
		return nil, false, storeErr("finalize sale", err)
	}

	if sale.Status.Terminal() {
		return sale, false, nil
	}

	const updateQuery = `
		UPDATE sales SET status = ?, event_time = ?
		WHERE network = ? AND market_id = ? AND status = ?
	`

	res, err := tx.ExecContext(ctx, updateQuery,
		string(SaleFinalized), eventTime, network, marketID.Hex(), string(SaleOnGoing))
	if err != nil {
		return nil, false, storeErr("finalize sale", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, storeErr("finalize sale", err)
	}
	if rows == 0 {
		// Another writer finalized or cancelled it between our read and update.
		return sale, false, nil
	}

	const ownerQuery = `
		UPDATE nfts SET owner = ?
		WHERE network = ? AND collection_id = ? AND token_id = ?
	`

	if _, err := tx.ExecContext(ctx, ownerQuery,
		buyer.Hex(), network, sale.CollectionID.Hex(), sale.TokenID); err != nil {
		return nil, false, storeErr("finalize sale", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, storeErr("finalize sale", err)
	}

	return sale, true, nil
}
