package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mintline/marketwatch/internal/logger"
	"github.com/russross/meddler"
)

// Store persists marketplace entities in SQLite. All writes are idempotent:
// replaying the same chain event leaves the database unchanged.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// New creates a Store on top of an already-migrated database.
func New(db *sql.DB, log *logger.Logger) *Store {
	return &Store{
		db:  db,
		log: log,
	}
}

// DB exposes the underlying handle for maintenance commands.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.log.Errorf("failed to rollback transaction: %v", err)
	}
}

// CreateCollection records a newly deployed collection. It returns false when
// the collection was already recorded for this network.
func (s *Store) CreateCollection(ctx context.Context, c *Collection) (bool, error) {
	const query = `
		INSERT OR IGNORE INTO collections
			(network, collection_id, name, symbol, category, owner, metadata_uri, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		c.Network, c.CollectionID.Hex(), c.Name, c.Symbol, c.Category,
		c.Owner.Hex(), c.MetadataURI, c.CreatedAt)
	if err != nil {
		return false, storeErr("create collection", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("create collection", err)
	}

	return rows > 0, nil
}

// GetCollection retrieves a collection by its contract address.
func (s *Store) GetCollection(ctx context.Context, network string, id common.Address) (*Collection, error) {
	const query = `SELECT * FROM collections WHERE network = ? AND collection_id = ?`

	c := new(Collection)
	err := meddler.QueryRow(s.db, c, query, network, id.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr("get collection", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get collection", err)
	}

	return c, nil
}

// ListCollections returns all collections recorded for a network.
func (s *Store) ListCollections(ctx context.Context, network string) ([]*Collection, error) {
	const query = `SELECT * FROM collections WHERE network = ? ORDER BY created_at ASC, collection_id ASC`

	var collections []*Collection
	if err := meddler.QueryAll(s.db, &collections, query, network); err != nil {
		return nil, storeErr("list collections", err)
	}

	return collections, nil
}

// CreateNFT records a minted token. It returns false when the token was
// already recorded for this network.
func (s *Store) CreateNFT(ctx context.Context, n *NFT) (bool, error) {
	const query = `
		INSERT OR IGNORE INTO nfts
			(network, collection_id, token_id, token_uri, owner, minted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		n.Network, n.CollectionID.Hex(), n.TokenID, n.TokenURI, n.Owner.Hex(), n.MintedAt)
	if err != nil {
		return false, storeErr("create nft", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("create nft", err)
	}

	return rows > 0, nil
}

// GetNFT retrieves a token by collection address and token id.
func (s *Store) GetNFT(ctx context.Context, network string, collection common.Address, tokenID string) (*NFT, error) {
	const query = `SELECT * FROM nfts WHERE network = ? AND collection_id = ? AND token_id = ?`

	n := new(NFT)
	err := meddler.QueryRow(s.db, n, query, network, collection.Hex(), tokenID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr("get nft", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get nft", err)
	}

	return n, nil
}

// ListNFTsByOwner returns all tokens owned by an account on a network.
func (s *Store) ListNFTsByOwner(ctx context.Context, network string, owner common.Address) ([]*NFT, error) {
	const query = `SELECT * FROM nfts WHERE network = ? AND owner = ? ORDER BY collection_id ASC, token_id ASC`

	var nfts []*NFT
	if err := meddler.QueryAll(s.db, &nfts, query, network, owner.Hex()); err != nil {
		return nil, storeErr("list nfts by owner", err)
	}

	return nfts, nil
}
