package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mintline/marketwatch/internal/config"
)

// Caller is the read-only contract call primitive consumed by components
// that look up token decimals, names and collection metadata.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Client wraps the Ethereum RPC client for one network. It provides log
// subscriptions and read-only contract calls with per-call timeouts and
// bounded retry.
type Client struct {
	network string
	eth     *ethclient.Client
	rpc     *rpc.Client
	cfg     config.RPCConfig
}

// Compile-time check that Client satisfies the Caller interface.
var _ Caller = (*Client)(nil)

// NewClient creates a new RPC client connected to the given endpoint.
// A WebSocket endpoint is required for log subscriptions.
func NewClient(ctx context.Context, network, endpoint string, cfg config.RPCConfig) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return &Client{
		network: network,
		eth:     ethclient.NewClient(rpcClient),
		rpc:     rpcClient,
		cfg:     cfg,
	}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Network returns the network name this client is bound to.
func (c *Client) Network() string {
	return c.network
}

// SubscribeLogs opens a log subscription for the given filter query.
// The subscription is handed back to the caller, who owns resubscription.
func (c *Client) SubscribeLogs(
	ctx context.Context,
	query ethereum.FilterQuery,
	ch chan<- types.Log,
) (ethereum.Subscription, error) {
	return c.eth.SubscribeFilterLogs(ctx, query, ch)
}

// CallContract performs a read-only eth_call with the configured per-call
// timeout and bounded retry. Failures are wrapped as ChainCallError.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var result []byte

	err := retryWithBackoff(ctx, c.cfg.Retry, c.network, "eth_call", func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout.Duration)
		defer cancel()

		out, err := c.eth.CallContract(callCtx, msg, nil)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, &ChainCallError{Op: "eth_call", Err: err}
	}

	return result, nil
}
