package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/russross/meddler"
)

// UpsertPushSubscription registers or refreshes a web-push subscription for
// an account. The created_at of the first registration is preserved.
func (s *Store) UpsertPushSubscription(ctx context.Context, sub *PushSubscription) error {
	const query = `
		INSERT INTO push_subscriptions (account_id, endpoint, keys, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET endpoint = excluded.endpoint, keys = excluded.keys
	`

	_, err := s.db.ExecContext(ctx, query, sub.AccountID, sub.Endpoint, sub.Keys, sub.CreatedAt)
	if err != nil {
		return storeErr("upsert push subscription", err)
	}

	return nil
}

// GetPushSubscription retrieves the subscription registered by an account.
func (s *Store) GetPushSubscription(ctx context.Context, accountID string) (*PushSubscription, error) {
	const query = `SELECT * FROM push_subscriptions WHERE account_id = ?`

	sub := new(PushSubscription)
	err := meddler.QueryRow(s.db, sub, query, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr("get push subscription", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get push subscription", err)
	}

	return sub, nil
}

// DeletePushSubscription removes the subscription for an account.
func (s *Store) DeletePushSubscription(ctx context.Context, accountID string) error {
	const query = `DELETE FROM push_subscriptions WHERE account_id = ?`

	res, err := s.db.ExecContext(ctx, query, accountID)
	if err != nil {
		return storeErr("delete push subscription", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete push subscription", err)
	}
	if affected == 0 {
		return storeErr("delete push subscription", ErrNotFound)
	}

	return nil
}
