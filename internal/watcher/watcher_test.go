package watcher

import (
	"context"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	mwcommon "github.com/mintline/marketwatch/internal/common"
	"github.com/mintline/marketwatch/internal/config"
	"github.com/mintline/marketwatch/internal/db"
	"github.com/mintline/marketwatch/internal/events"
	"github.com/mintline/marketwatch/internal/logger"
	"github.com/mintline/marketwatch/internal/migrations"
	"github.com/mintline/marketwatch/internal/rpc"
	"github.com/mintline/marketwatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testContract = common.HexToAddress("0x00000000000000000000000000000000000000CC")

type fakeHandler struct {
	mu     sync.Mutex
	events []events.Event
	errs   []error // consumed one per call, nil once exhausted
}

func (f *fakeHandler) Handle(ctx context.Context, ev events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeHandler) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeSub struct {
	errCh chan error
}

func (f *fakeSub) Unsubscribe()      {}
func (f *fakeSub) Err() <-chan error { return f.errCh }

// fakeSubscriber delivers one batch of logs per successful subscribe call and
// then reports a subscription error, forcing a resubscribe.
type fakeSubscriber struct {
	mu      sync.Mutex
	batches [][]types.Log
	calls   int
}

func (f *fakeSubscriber) SubscribeLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()

	sub := &fakeSub{errCh: make(chan error, 1)}

	if idx < len(f.batches) {
		for _, lg := range f.batches[idx] {
			ch <- lg
		}
		sub.errCh <- assert.AnError
	}

	return sub, nil
}

func (f *fakeSubscriber) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testWatcherConfig() config.WatcherConfig {
	return config.WatcherConfig{
		Workers:                   2,
		QueueSize:                 16,
		ResubscribeInitialBackoff: mwcommon.NewDuration(5 * time.Millisecond),
		ResubscribeMaxBackoff:     mwcommon.NewDuration(20 * time.Millisecond),
	}
}

func testRetryConfig() *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    mwcommon.NewDuration(time.Millisecond),
		MaxBackoff:        mwcommon.NewDuration(5 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}
}

func setupTestWatcher(t *testing.T, handler EventHandler, subscriber LogSubscriber) (*Watcher, *store.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "watcher_test.db")

	sqlDB, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, migrations.RunMigrations(sqlDB, logger.GetDefaultLogger()))
	st := store.New(sqlDB, logger.GetDefaultLogger())

	decoder, err := events.NewDecoder()
	require.NoError(t, err)

	w := NewWatcher("sepolia", testContract, subscriber, decoder, handler, st,
		testWatcherConfig(), testRetryConfig(), logger.GetDefaultLogger())

	return w, st
}

// cancelLog builds a raw MarketItemCancelled log; both arguments are static
// 32-byte words so the data section can be assembled by hand.
func cancelLog(marketID common.Hash, timestamp int64, txHash common.Hash, index uint) types.Log {
	data := append(marketID.Bytes(), common.LeftPadBytes(big.NewInt(timestamp).Bytes(), 32)...)

	return types.Log{
		Address:     testContract,
		Topics:      []common.Hash{crypto.Keccak256Hash([]byte("MarketItemCancelled(bytes32,uint256)"))},
		Data:        data,
		BlockNumber: 42,
		TxHash:      txHash,
		Index:       index,
	}
}

func TestWatcher_Process(t *testing.T) {
	handler := &fakeHandler{}
	w, st := setupTestWatcher(t, handler, &fakeSubscriber{})
	ctx := context.Background()

	w.process(ctx, cancelLog(common.HexToHash("0x20"), 1700000000, common.HexToHash("0xa1"), 0))

	require.Equal(t, 1, handler.calls())
	ev, ok := handler.events[0].(events.MarketItemCancelled)
	require.True(t, ok)
	assert.Equal(t, common.HexToHash("0x20"), ev.MarketID)
	assert.EqualValues(t, 1700000000, ev.Timestamp.Int64())

	letters, err := st.ListDeadLetters(ctx, "sepolia")
	require.NoError(t, err)
	require.Empty(t, letters)
}

func TestWatcher_Process_SkipsRemovedLogs(t *testing.T) {
	handler := &fakeHandler{}
	w, _ := setupTestWatcher(t, handler, &fakeSubscriber{})

	lg := cancelLog(common.HexToHash("0x20"), 1700000000, common.HexToHash("0xa1"), 0)
	lg.Removed = true
	w.process(context.Background(), lg)

	require.Zero(t, handler.calls())
}

func TestWatcher_Process_DecodeFailure(t *testing.T) {
	handler := &fakeHandler{}
	w, st := setupTestWatcher(t, handler, &fakeSubscriber{})
	ctx := context.Background()

	lg := cancelLog(common.HexToHash("0x20"), 1700000000, common.HexToHash("0xa1"), 0)
	lg.Data = []byte{0x01, 0x02} // truncated data cannot be unpacked

	w.process(ctx, lg)

	// The handler is never reached; the raw log is preserved for replay.
	require.Zero(t, handler.calls())

	letters, err := st.ListDeadLetters(ctx, "sepolia")
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "MarketItemCancelled", letters[0].EventKind)
	assert.Equal(t, lg.TxHash, letters[0].TxHash)
	assert.NotEmpty(t, letters[0].Payload)
}

func TestWatcher_Process_RetryThenSuccess(t *testing.T) {
	handler := &fakeHandler{errs: []error{&rpc.ChainCallError{Op: "eth_call", Err: assert.AnError}}}
	w, st := setupTestWatcher(t, handler, &fakeSubscriber{})
	ctx := context.Background()

	w.process(ctx, cancelLog(common.HexToHash("0x20"), 1700000000, common.HexToHash("0xa1"), 0))

	require.Equal(t, 2, handler.calls())

	letters, err := st.ListDeadLetters(ctx, "sepolia")
	require.NoError(t, err)
	require.Empty(t, letters)
}

func TestWatcher_Process_RetriesExhaustedDeadLetters(t *testing.T) {
	chainErr := &rpc.ChainCallError{Op: "eth_call", Err: assert.AnError}
	handler := &fakeHandler{errs: []error{chainErr, chainErr, chainErr}}
	w, st := setupTestWatcher(t, handler, &fakeSubscriber{})
	ctx := context.Background()

	lg := cancelLog(common.HexToHash("0x20"), 1700000000, common.HexToHash("0xa1"), 0)
	w.process(ctx, lg)

	require.Equal(t, 3, handler.calls())

	letters, err := st.ListDeadLetters(ctx, "sepolia")
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Contains(t, letters[0].LastError, "all 3 attempts failed")

	// Re-processing the same log after another failure does not duplicate
	// the dead letter.
	handler.errs = []error{chainErr, chainErr, chainErr}
	w.process(ctx, lg)

	letters, err = st.ListDeadLetters(ctx, "sepolia")
	require.NoError(t, err)
	require.Len(t, letters, 1)
}

func TestWatcher_Process_NonRetryableFailsFast(t *testing.T) {
	handler := &fakeHandler{errs: []error{assert.AnError, assert.AnError, assert.AnError}}
	w, st := setupTestWatcher(t, handler, &fakeSubscriber{})
	ctx := context.Background()

	w.process(ctx, cancelLog(common.HexToHash("0x20"), 1700000000, common.HexToHash("0xa1"), 0))

	// A permanent error is not retried.
	require.Equal(t, 1, handler.calls())

	letters, err := st.ListDeadLetters(ctx, "sepolia")
	require.NoError(t, err)
	require.Len(t, letters, 1)
}

func TestWatcher_Run_DeliversAndResubscribes(t *testing.T) {
	handler := &fakeHandler{}
	subscriber := &fakeSubscriber{
		batches: [][]types.Log{
			{cancelLog(common.HexToHash("0x20"), 1700000000, common.HexToHash("0xa1"), 0)},
			{cancelLog(common.HexToHash("0x21"), 1700000100, common.HexToHash("0xa2"), 0)},
		},
	}
	w, _ := setupTestWatcher(t, handler, subscriber)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return handler.calls() >= 2
	}, 2*time.Second, 10*time.Millisecond, "both batches should be processed across a resubscribe")

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}

	// First subscription dropped, so at least two subscribe calls were made.
	assert.GreaterOrEqual(t, subscriber.subscribeCount(), 2)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := newKeyedMutex(8)

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("sale:0x20")
			counter++
			km.Unlock("sale:0x20")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestEntityKey(t *testing.T) {
	marketID := common.HexToHash("0x20")
	orderID := common.HexToHash("0x10")

	// All events touching one sale share a key, likewise for orders.
	assert.Equal(t,
		entityKey(events.MarketItemCreated{MarketID: marketID}),
		entityKey(events.MarketItemCancelled{MarketID: marketID}))
	assert.Equal(t,
		entityKey(events.MarketItemCreated{MarketID: marketID}),
		entityKey(events.SaleMade{MarketID: marketID}))

	assert.Equal(t,
		entityKey(events.OrderMade{OrderID: orderID}),
		entityKey(events.OrderItemEnded{OrderID: orderID}))
	assert.Equal(t,
		entityKey(events.OrderMade{OrderID: orderID}),
		entityKey(events.OrderItemCancelled{OrderID: orderID}))

	assert.NotEqual(t,
		entityKey(events.SaleMade{MarketID: marketID}),
		entityKey(events.OrderMade{OrderID: orderID}))
}
