package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testCollection = common.HexToAddress("0xAAAA000000000000000000000000000000000001")
	testOwner      = common.HexToAddress("0xBBBB000000000000000000000000000000000002")
	testBuyer      = common.HexToAddress("0xCCCC000000000000000000000000000000000003")
	testCurrency   = common.HexToAddress("0xDDDD000000000000000000000000000000000004")
	testMarketID   = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa")
	testOrderID    = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000bb")
)

// packLog builds a raw log carrying the given event's packed arguments.
func packLog(t *testing.T, d *Decoder, name string, args ...interface{}) types.Log {
	t.Helper()

	ev, ok := d.abi.Events[name]
	require.True(t, ok, "unknown event %s", name)

	data, err := ev.Inputs.Pack(args...)
	require.NoError(t, err)

	return types.Log{
		Topics: []common.Hash{ev.ID},
		Data:   data,
	}
}

func TestDecoder_Topics(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	topics := d.Topics()
	require.Len(t, topics, 9)

	// Signature hashes must match the canonical event declarations.
	sigs := []string{
		"CollectionDeployed(address,address,uint256,string,string,string)",
		"Mint(address,uint256,uint256,string,address)",
		"MarketItemCreated(address,address,uint256,address,uint256,bytes32,uint256)",
		"MarketItemCancelled(bytes32,uint256)",
		"SaleMade(bytes32,address,address,uint256,address,address,uint256,uint256)",
		"OrderMade(address,address,address,uint256,address,uint256,bytes32)",
		"OrderItemCancelled(bytes32,uint256)",
		"OrderItemEnded(bytes32,uint256)",
		"OrderItemRejected(bytes32,uint256)",
	}
	for i, sig := range sigs {
		assert.Equal(t, crypto.Keccak256Hash([]byte(sig)), topics[i], sig)
	}
}

func TestDecoder_CollectionDeployed(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	lg := packLog(t, d, "CollectionDeployed",
		testCollection, testOwner, big.NewInt(1700000000), "Apes", "art", "APE")

	ev, err := d.Decode(lg)
	require.NoError(t, err)

	deployed, ok := ev.(CollectionDeployed)
	require.True(t, ok)
	assert.Equal(t, KindCollectionDeployed, ev.Kind())
	assert.Equal(t, testCollection, deployed.Collection)
	assert.Equal(t, testOwner, deployed.Owner)
	assert.Equal(t, int64(1700000000), deployed.Timestamp.Int64())
	assert.Equal(t, "Apes", deployed.Name)
	assert.Equal(t, "art", deployed.Category)
	assert.Equal(t, "APE", deployed.Symbol)
}

func TestDecoder_Mint(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	lg := packLog(t, d, "Mint",
		testCollection, big.NewInt(7), big.NewInt(1700000001), "ipfs://token/7", testOwner)

	ev, err := d.Decode(lg)
	require.NoError(t, err)

	mint, ok := ev.(Mint)
	require.True(t, ok)
	assert.Equal(t, int64(7), mint.TokenID.Int64())
	assert.Equal(t, "ipfs://token/7", mint.TokenURI)
	assert.Equal(t, testOwner, mint.Owner)
}

func TestDecoder_MarketItemCreated(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	price, _ := new(big.Int).SetString("1500000000000000000", 10)
	lg := packLog(t, d, "MarketItemCreated",
		testOwner, testCollection, big.NewInt(7), testCurrency, price,
		[32]byte(testMarketID), big.NewInt(1700000002))

	ev, err := d.Decode(lg)
	require.NoError(t, err)

	created, ok := ev.(MarketItemCreated)
	require.True(t, ok)
	assert.Equal(t, testOwner, created.Creator)
	assert.Equal(t, testCurrency, created.Currency)
	assert.Equal(t, price, created.Price)
	assert.Equal(t, testMarketID, created.MarketID)
}

func TestDecoder_SaleMade(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	lg := packLog(t, d, "SaleMade",
		[32]byte(testMarketID), testOwner, testBuyer, big.NewInt(7),
		testCollection, testCurrency, big.NewInt(1000), big.NewInt(1700000003))

	ev, err := d.Decode(lg)
	require.NoError(t, err)

	sale, ok := ev.(SaleMade)
	require.True(t, ok)
	assert.Equal(t, testMarketID, sale.MarketID)
	assert.Equal(t, testOwner, sale.Seller)
	assert.Equal(t, testBuyer, sale.Buyer)
	assert.Equal(t, testCollection, sale.Collection)
	assert.Equal(t, int64(1000), sale.Amount.Int64())
}

func TestDecoder_OrderMade(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	lg := packLog(t, d, "OrderMade",
		testBuyer, testOwner, testCollection, big.NewInt(7),
		common.Address{}, big.NewInt(500), [32]byte(testOrderID))

	ev, err := d.Decode(lg)
	require.NoError(t, err)

	order, ok := ev.(OrderMade)
	require.True(t, ok)
	assert.Equal(t, testBuyer, order.Creator)
	assert.Equal(t, testOwner, order.To)
	assert.Equal(t, common.Address{}, order.BidCurrency)
	assert.Equal(t, testOrderID, order.OrderID)
}

func TestDecoder_TerminalOrderEvents(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	tests := []struct {
		name string
		kind Kind
	}{
		{name: "OrderItemCancelled", kind: KindOrderItemCancelled},
		{name: "OrderItemEnded", kind: KindOrderItemEnded},
		{name: "OrderItemRejected", kind: KindOrderItemRejected},
		{name: "MarketItemCancelled", kind: KindMarketItemCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := testOrderID
			if tt.kind == KindMarketItemCancelled {
				id = testMarketID
			}
			lg := packLog(t, d, tt.name, [32]byte(id), big.NewInt(1700000004))

			ev, err := d.Decode(lg)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind())
		})
	}
}

func TestDecoder_UnknownTopic(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	lg := types.Log{
		Topics: []common.Hash{crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))},
	}

	_, err = d.Decode(lg)
	require.Error(t, err)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.ErrorIs(t, err, ErrUnknownTopic)
}

func TestDecoder_MalformedData(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	ev := d.abi.Events["SaleMade"]
	lg := types.Log{
		Topics: []common.Hash{ev.ID},
		Data:   []byte{0x01, 0x02, 0x03}, // not a valid ABI tuple
	}

	_, err = d.Decode(lg)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestDecoder_NoTopics(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	_, err = d.Decode(types.Log{})
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}
