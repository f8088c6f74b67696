package store

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeadLetter(network string, block uint64, logIndex uint) *DeadLetter {
	return &DeadLetter{
		Network:     network,
		EventKind:   "SaleMade",
		BlockNumber: block,
		TxHash:      common.HexToHash("0xf00d"),
		LogIndex:    logIndex,
		Payload:     `{"address":"0x0000000000000000000000000000000000000000"}`,
		LastError:   "store finalize sale: database is locked",
	}
}

func TestStore_SaveDeadLetter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	d := testDeadLetter("sepolia", 100, 3)
	created, err := s.SaveDeadLetter(ctx, d)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, d.ID)
	require.NotZero(t, d.CreatedAt)

	// The same chain log is only dead-lettered once.
	dup := testDeadLetter("sepolia", 100, 3)
	created, err = s.SaveDeadLetter(ctx, dup)
	require.NoError(t, err)
	require.False(t, created)

	got, err := s.GetDeadLetter(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "SaleMade", got.EventKind)
	assert.Equal(t, d.TxHash, got.TxHash)
	assert.EqualValues(t, 3, got.LogIndex)
	assert.Equal(t, d.Payload, got.Payload)
}

func TestStore_ListDeadLetters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Insert out of chain order to verify replay ordering.
	for _, d := range []*DeadLetter{
		testDeadLetter("sepolia", 200, 1),
		testDeadLetter("sepolia", 100, 5),
		testDeadLetter("sepolia", 100, 2),
		testDeadLetter("polygon", 50, 0),
	} {
		_, err := s.SaveDeadLetter(ctx, d)
		require.NoError(t, err)
	}

	letters, err := s.ListDeadLetters(ctx, "sepolia")
	require.NoError(t, err)
	require.Len(t, letters, 3)
	assert.EqualValues(t, 100, letters[0].BlockNumber)
	assert.EqualValues(t, 2, letters[0].LogIndex)
	assert.EqualValues(t, 100, letters[1].BlockNumber)
	assert.EqualValues(t, 5, letters[1].LogIndex)
	assert.EqualValues(t, 200, letters[2].BlockNumber)

	all, err := s.ListDeadLetters(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestStore_DeleteDeadLetter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	d := testDeadLetter("sepolia", 100, 0)
	_, err := s.SaveDeadLetter(ctx, d)
	require.NoError(t, err)

	require.NoError(t, s.DeleteDeadLetter(ctx, d.ID))

	_, err = s.GetDeadLetter(ctx, d.ID)
	require.ErrorIs(t, err, ErrNotFound)

	err = s.DeleteDeadLetter(ctx, d.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
