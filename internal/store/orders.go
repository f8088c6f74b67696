package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

// CreateOrder records a new bid with status STARTED. It returns false when
// the order id was already recorded for this network.
func (s *Store) CreateOrder(ctx context.Context, o *Order) (bool, error) {
	const query = `
		INSERT OR IGNORE INTO orders
			(network, order_id, creator, counterparty, collection_id, token_id, bid_currency, amount, status, event_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		o.Network, o.OrderID.Hex(), o.Creator.Hex(), o.Counterparty.Hex(),
		o.CollectionID.Hex(), o.TokenID, o.BidCurrency.Hex(), o.Amount,
		string(OrderStarted), o.EventTime)
	if err != nil {
		return false, storeErr("create order", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("create order", err)
	}

	return rows > 0, nil
}

// GetOrder retrieves a bid by order id.
func (s *Store) GetOrder(ctx context.Context, network string, orderID common.Hash) (*Order, error) {
	const query = `SELECT * FROM orders WHERE network = ? AND order_id = ?`

	o := new(Order)
	err := meddler.QueryRow(s.db, o, query, network, orderID.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr("get order", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get order", err)
	}

	return o, nil
}

// ListOrdersByStatus returns all bids for a network in the given status.
func (s *Store) ListOrdersByStatus(ctx context.Context, network string, status OrderStatus) ([]*Order, error) {
	const query = `SELECT * FROM orders WHERE network = ? AND status = ? ORDER BY event_time ASC, order_id ASC`

	var orders []*Order
	if err := meddler.QueryAll(s.db, &orders, query, network, string(status)); err != nil {
		return nil, storeErr("list orders by status", err)
	}

	return orders, nil
}

// AcceptOrder moves a STARTED bid to ACCEPTED and transfers the bid-on token
// to the bid creator in the same transaction. It returns the order plus
// whether the transition was applied; a bid already in a terminal state
// yields (order, false, nil) and leaves ownership untouched.
func (s *Store) AcceptOrder(ctx context.Context, network string, orderID common.Hash, eventTime int64) (*Order, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, storeErr("accept order", err)
	}
	defer s.rollback(tx)

	const selectQuery = `SELECT * FROM orders WHERE network = ? AND order_id = ?`

	o := new(Order)
	err = meddler.QueryRow(tx, o, selectQuery, network, orderID.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, storeErr("accept order", ErrNotFound)
	}
	if err != nil {
		return nil, false, storeErr("accept order", err)
	}

	if o.Status.Terminal() {
		return o, false, nil
	}

	const updateQuery = `
		UPDATE orders SET status = ?, event_time = ?
		WHERE network = ? AND order_id = ? AND status = ?
	`

	res, err := tx.ExecContext(ctx, updateQuery,
		string(OrderAccepted), eventTime, network, orderID.Hex(), string(OrderStarted))
	if err != nil {
		return nil, false, storeErr("accept order", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, storeErr("accept order", err)
	}
	if rows == 0 {
		return o, false, nil
	}

	const ownerQuery = `
		UPDATE nfts SET owner = ?
		WHERE network = ? AND collection_id = ? AND token_id = ?
	`

	if _, err := tx.ExecContext(ctx, ownerQuery,
		o.Creator.Hex(), network, o.CollectionID.Hex(), o.TokenID); err != nil {
		return nil, false, storeErr("accept order", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, storeErr("accept order", err)
	}

	return o, true, nil
}

// TerminateOrder moves a STARTED bid to CANCELLED or REJECTED. It returns
// false without error when the bid is already in a terminal state; an unknown
// order id is reported as ErrNotFound.
func (s *Store) TerminateOrder(ctx context.Context, network string, orderID common.Hash, status OrderStatus, eventTime int64) (bool, error) {
	if status != OrderCancelled && status != OrderRejected {
		return false, storeErr("terminate order", errors.New("status must be CANCELLED or REJECTED"))
	}

	const query = `
		UPDATE orders SET status = ?, event_time = ?
		WHERE network = ? AND order_id = ? AND status = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		string(status), eventTime, network, orderID.Hex(), string(OrderStarted))
	if err != nil {
		return false, storeErr("terminate order", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("terminate order", err)
	}
	if rows > 0 {
		return true, nil
	}

	if _, err := s.GetOrder(ctx, network, orderID); err != nil {
		return false, err
	}

	return false, nil
}
