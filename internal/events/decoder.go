package events

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// marketABI declares the nine marketplace events. All arguments are
// non-indexed, so subscriptions filter on the signature topic only and the
// full argument tuple is unpacked from the log data.
const marketABI = `[
	{"type":"event","name":"CollectionDeployed","inputs":[
		{"name":"collection","type":"address"},
		{"name":"owner","type":"address"},
		{"name":"timestamp","type":"uint256"},
		{"name":"name","type":"string"},
		{"name":"category","type":"string"},
		{"name":"symbol","type":"string"}]},
	{"type":"event","name":"Mint","inputs":[
		{"name":"collection","type":"address"},
		{"name":"tokenId","type":"uint256"},
		{"name":"timestamp","type":"uint256"},
		{"name":"tokenURI","type":"string"},
		{"name":"owner","type":"address"}]},
	{"type":"event","name":"MarketItemCreated","inputs":[
		{"name":"creator","type":"address"},
		{"name":"collection","type":"address"},
		{"name":"tokenId","type":"uint256"},
		{"name":"currency","type":"address"},
		{"name":"price","type":"uint256"},
		{"name":"marketId","type":"bytes32"},
		{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"MarketItemCancelled","inputs":[
		{"name":"marketId","type":"bytes32"},
		{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"SaleMade","inputs":[
		{"name":"marketId","type":"bytes32"},
		{"name":"seller","type":"address"},
		{"name":"buyer","type":"address"},
		{"name":"tokenId","type":"uint256"},
		{"name":"collection","type":"address"},
		{"name":"currency","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"OrderMade","inputs":[
		{"name":"creator","type":"address"},
		{"name":"to","type":"address"},
		{"name":"collection","type":"address"},
		{"name":"tokenId","type":"uint256"},
		{"name":"bidCurrency","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"orderId","type":"bytes32"}]},
	{"type":"event","name":"OrderItemCancelled","inputs":[
		{"name":"orderId","type":"bytes32"},
		{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"OrderItemEnded","inputs":[
		{"name":"orderId","type":"bytes32"},
		{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"OrderItemRejected","inputs":[
		{"name":"orderId","type":"bytes32"},
		{"name":"timestamp","type":"uint256"}]}
]`

// ErrUnknownTopic is returned when a log's signature topic matches none of
// the marketplace events.
var ErrUnknownTopic = errors.New("unknown event topic")

// DecodeError wraps a failure to turn a raw log into a typed event. The
// watcher filters by topic before decoding, so a DecodeError signals an
// ABI/source mismatch rather than routine traffic.
type DecodeError struct {
	Topic common.Hash
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode log with topic %s: %v", e.Topic.Hex(), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder turns raw marketplace logs into typed events. It holds the parsed
// contract interface; construct one per process and share it, decoding is
// pure and safe for concurrent use.
type Decoder struct {
	abi     abi.ABI
	byTopic map[common.Hash]string
	topics  []common.Hash
}

// NewDecoder parses the marketplace contract interface and builds the
// topic routing table.
func NewDecoder() (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(marketABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse market ABI: %w", err)
	}

	d := &Decoder{
		abi:     parsed,
		byTopic: make(map[common.Hash]string, len(parsed.Events)),
	}

	// Deterministic topic order for subscription filters.
	for _, kind := range []Kind{
		KindCollectionDeployed,
		KindMint,
		KindMarketItemCreated,
		KindMarketItemCancelled,
		KindSaleMade,
		KindOrderMade,
		KindOrderItemCancelled,
		KindOrderItemEnded,
		KindOrderItemRejected,
	} {
		ev, ok := parsed.Events[string(kind)]
		if !ok {
			return nil, fmt.Errorf("market ABI is missing event %s", kind)
		}
		d.byTopic[ev.ID] = ev.Name
		d.topics = append(d.topics, ev.ID)
	}

	return d, nil
}

// Topics returns the signature topic hashes of all supported events, in a
// stable order suitable for a subscription filter.
func (d *Decoder) Topics() []common.Hash {
	out := make([]common.Hash, len(d.topics))
	copy(out, d.topics)
	return out
}

// KindOf returns the event kind for a signature topic, if known.
func (d *Decoder) KindOf(topic common.Hash) (Kind, bool) {
	name, ok := d.byTopic[topic]
	return Kind(name), ok
}

// Decode turns a raw log into a typed event, or fails with a DecodeError.
func (d *Decoder) Decode(lg types.Log) (Event, error) {
	if len(lg.Topics) == 0 {
		return nil, &DecodeError{Err: errors.New("log has no topics")}
	}

	topic := lg.Topics[0]
	name, ok := d.byTopic[topic]
	if !ok {
		return nil, &DecodeError{Topic: topic, Err: ErrUnknownTopic}
	}

	args, err := d.abi.Unpack(name, lg.Data)
	if err != nil {
		return nil, &DecodeError{Topic: topic, Err: err}
	}

	ev, err := buildEvent(Kind(name), args)
	if err != nil {
		return nil, &DecodeError{Topic: topic, Err: err}
	}
	return ev, nil
}

// buildEvent maps the positional unpacked arguments onto the typed struct
// for the given kind.
func buildEvent(kind Kind, args []interface{}) (Event, error) {
	p := &argReader{args: args}

	var ev Event
	switch kind {
	case KindCollectionDeployed:
		ev = CollectionDeployed{
			Collection: p.address(),
			Owner:      p.address(),
			Timestamp:  p.bigInt(),
			Name:       p.str(),
			Category:   p.str(),
			Symbol:     p.str(),
		}
	case KindMint:
		ev = Mint{
			Collection: p.address(),
			TokenID:    p.bigInt(),
			Timestamp:  p.bigInt(),
			TokenURI:   p.str(),
			Owner:      p.address(),
		}
	case KindMarketItemCreated:
		ev = MarketItemCreated{
			Creator:    p.address(),
			Collection: p.address(),
			TokenID:    p.bigInt(),
			Currency:   p.address(),
			Price:      p.bigInt(),
			MarketID:   p.hash(),
			Timestamp:  p.bigInt(),
		}
	case KindMarketItemCancelled:
		ev = MarketItemCancelled{
			MarketID:  p.hash(),
			Timestamp: p.bigInt(),
		}
	case KindSaleMade:
		ev = SaleMade{
			MarketID:   p.hash(),
			Seller:     p.address(),
			Buyer:      p.address(),
			TokenID:    p.bigInt(),
			Collection: p.address(),
			Currency:   p.address(),
			Amount:     p.bigInt(),
			Timestamp:  p.bigInt(),
		}
	case KindOrderMade:
		ev = OrderMade{
			Creator:     p.address(),
			To:          p.address(),
			Collection:  p.address(),
			TokenID:     p.bigInt(),
			BidCurrency: p.address(),
			Amount:      p.bigInt(),
			OrderID:     p.hash(),
		}
	case KindOrderItemCancelled:
		ev = OrderItemCancelled{
			OrderID:   p.hash(),
			Timestamp: p.bigInt(),
		}
	case KindOrderItemEnded:
		ev = OrderItemEnded{
			OrderID:   p.hash(),
			Timestamp: p.bigInt(),
		}
	case KindOrderItemRejected:
		ev = OrderItemRejected{
			OrderID:   p.hash(),
			Timestamp: p.bigInt(),
		}
	default:
		return nil, fmt.Errorf("unsupported event kind %s", kind)
	}

	if p.err != nil {
		return nil, p.err
	}
	return ev, nil
}

// argReader consumes unpacked ABI values positionally, recording the first
// type mismatch instead of panicking on a bad assertion.
type argReader struct {
	args []interface{}
	pos  int
	err  error
}

func (p *argReader) next() (interface{}, bool) {
	if p.err != nil {
		return nil, false
	}
	if p.pos >= len(p.args) {
		p.err = fmt.Errorf("argument %d out of range (have %d)", p.pos, len(p.args))
		return nil, false
	}
	v := p.args[p.pos]
	p.pos++
	return v, true
}

func (p *argReader) address() common.Address {
	v, ok := p.next()
	if !ok {
		return common.Address{}
	}
	addr, ok := v.(common.Address)
	if !ok {
		p.err = fmt.Errorf("argument %d: expected address, got %T", p.pos-1, v)
		return common.Address{}
	}
	return addr
}

func (p *argReader) bigInt() *big.Int {
	v, ok := p.next()
	if !ok {
		return nil
	}
	n, ok := v.(*big.Int)
	if !ok {
		p.err = fmt.Errorf("argument %d: expected uint256, got %T", p.pos-1, v)
		return nil
	}
	return n
}

func (p *argReader) str() string {
	v, ok := p.next()
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		p.err = fmt.Errorf("argument %d: expected string, got %T", p.pos-1, v)
		return ""
	}
	return s
}

func (p *argReader) hash() common.Hash {
	v, ok := p.next()
	if !ok {
		return common.Hash{}
	}
	b, ok := v.([32]byte)
	if !ok {
		p.err = fmt.Errorf("argument %d: expected bytes32, got %T", p.pos-1, v)
		return common.Hash{}
	}
	return common.Hash(b)
}
