package currency

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mintline/marketwatch/internal/logger"
	"github.com/mintline/marketwatch/internal/rpc"
)

const (
	// NativeName is the display name used for the chain's native currency.
	NativeName = "Ethers"

	// nativeDecimals is the fixed precision of the native currency.
	nativeDecimals = 18
)

// NativeCurrency is the sentinel address meaning "pay in the chain's
// native currency" rather than an ERC20 token.
var NativeCurrency = common.Address{}

const erc20ABI = `[
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],
		"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"name","stateMutability":"view","inputs":[],
		"outputs":[{"name":"","type":"string"}]}
]`

// Normalizer resolves ERC20 token precision and names for one network and
// converts raw on-chain integer amounts into human-readable decimal strings.
//
// Token decimals are immutable per contract, so resolved values are cached
// for the process lifetime. A failed resolution is never replaced with a
// default; the ChainCallError surfaces to the caller.
type Normalizer struct {
	network string
	caller  rpc.Caller
	abi     abi.ABI
	log     *logger.Logger

	mu       sync.RWMutex
	decimals map[common.Address]uint8
	names    map[common.Address]string
}

// NewNormalizer creates a Normalizer bound to one network's RPC caller.
func NewNormalizer(network string, caller rpc.Caller, log *logger.Logger) (*Normalizer, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	return &Normalizer{
		network:  network,
		caller:   caller,
		abi:      parsed,
		log:      log.WithNetwork(network),
		decimals: make(map[common.Address]uint8),
		names:    make(map[common.Address]string),
	}, nil
}

// Decimals resolves the token's precision via a read-only decimals() call.
// The native-currency sentinel resolves without a network round-trip.
func (n *Normalizer) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if token == NativeCurrency {
		return nativeDecimals, nil
	}

	n.mu.RLock()
	cached, ok := n.decimals[token]
	n.mu.RUnlock()
	if ok {
		return cached, nil
	}

	out, err := n.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}

	var dec uint8
	if err := n.abi.UnpackIntoInterface(&dec, "decimals", out); err != nil {
		return 0, fmt.Errorf("failed to decode decimals() result from %s: %w", token.Hex(), err)
	}

	n.mu.Lock()
	n.decimals[token] = dec
	n.mu.Unlock()

	n.log.Debugw("resolved token decimals", "token", token.Hex(), "decimals", dec)

	return dec, nil
}

// TokenName resolves the token's display name via a read-only name() call.
// The native-currency sentinel resolves to NativeName without a network call.
func (n *Normalizer) TokenName(ctx context.Context, token common.Address) (string, error) {
	if token == NativeCurrency {
		return NativeName, nil
	}

	n.mu.RLock()
	cached, ok := n.names[token]
	n.mu.RUnlock()
	if ok {
		return cached, nil
	}

	out, err := n.call(ctx, token, "name")
	if err != nil {
		return "", err
	}

	var name string
	if err := n.abi.UnpackIntoInterface(&name, "name", out); err != nil {
		return "", fmt.Errorf("failed to decode name() result from %s: %w", token.Hex(), err)
	}

	n.mu.Lock()
	n.names[token] = name
	n.mu.Unlock()

	return name, nil
}

// Normalize converts a raw integer amount into a decimal string using the
// token's precision. The native sentinel always uses 18 decimals.
func (n *Normalizer) Normalize(ctx context.Context, raw *big.Int, token common.Address) (string, error) {
	dec, err := n.Decimals(ctx, token)
	if err != nil {
		return "", err
	}
	return FormatUnits(raw, dec), nil
}

func (n *Normalizer) call(ctx context.Context, token common.Address, method string) ([]byte, error) {
	data, err := n.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s() call: %w", method, err)
	}

	out, err := n.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s() on %s: %w", method, token.Hex(), err)
	}
	return out, nil
}
