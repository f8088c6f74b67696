package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/russross/meddler"
)

// DeadLetter is a chain event that exhausted its processing retries. Payload
// holds the original log as JSON so the event can be replayed later.
type DeadLetter struct {
	ID          string      `meddler:"id"`
	Network     string      `meddler:"network"`
	EventKind   string      `meddler:"event_kind"`
	BlockNumber uint64      `meddler:"block_number"`
	TxHash      common.Hash `meddler:"tx_hash,hash"`
	LogIndex    uint        `meddler:"log_index"`
	Payload     string      `meddler:"payload"`
	LastError   string      `meddler:"last_error"`
	CreatedAt   int64       `meddler:"created_at"`
}

// SaveDeadLetter persists a failed event for later replay. The same log
// (network, tx hash, log index) is only recorded once; re-saving it returns
// false without error.
func (s *Store) SaveDeadLetter(ctx context.Context, d *DeadLetter) (bool, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt == 0 {
		d.CreatedAt = time.Now().Unix()
	}

	const query = `
		INSERT OR IGNORE INTO dead_letters
			(id, network, event_kind, block_number, tx_hash, log_index, payload, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		d.ID, d.Network, d.EventKind, d.BlockNumber, d.TxHash.Hex(), d.LogIndex,
		d.Payload, d.LastError, d.CreatedAt)
	if err != nil {
		return false, storeErr("save dead letter", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("save dead letter", err)
	}

	return rows > 0, nil
}

// GetDeadLetter retrieves a dead letter by id.
func (s *Store) GetDeadLetter(ctx context.Context, id string) (*DeadLetter, error) {
	const query = `SELECT * FROM dead_letters WHERE id = ?`

	d := new(DeadLetter)
	err := meddler.QueryRow(s.db, d, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr("get dead letter", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get dead letter", err)
	}

	return d, nil
}

// ListDeadLetters returns dead letters for a network in the order they were
// emitted on chain. An empty network returns all of them.
func (s *Store) ListDeadLetters(ctx context.Context, network string) ([]*DeadLetter, error) {
	const query = `
		SELECT * FROM dead_letters
		WHERE (? = '' OR network = ?)
		ORDER BY block_number ASC, log_index ASC
	`

	var letters []*DeadLetter
	if err := meddler.QueryAll(s.db, &letters, query, network, network); err != nil {
		return nil, storeErr("list dead letters", err)
	}

	return letters, nil
}

// DeleteDeadLetter removes a dead letter after a successful replay.
func (s *Store) DeleteDeadLetter(ctx context.Context, id string) error {
	const query = `DELETE FROM dead_letters WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return storeErr("delete dead letter", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete dead letter", err)
	}
	if rows == 0 {
		return storeErr("delete dead letter", ErrNotFound)
	}

	return nil
}
