package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/woodchain/internal/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"math/big"
	"sync"
	"time"
)

var (
	ErrNotDeployed     = errors.New("contract not deployed on the current network")
	ErrNoNodeAccounts  = errors.New("ledger node exposes no accounts")
	ErrNodeSignerUnset = errors.New("node-signed transaction requested but no rpc client configured")
)

// Backend is the part of *ethclient.Client the ledger client needs.
type Backend interface {
	NetworkID(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// NodeRPC issues raw JSON-RPC calls (eth_accounts, eth_sendTransaction). *rpc.Client satisfies it.
type NodeRPC interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

type Options struct {
	GasLimit       uint64
	ReceiptPoll    time.Duration
	ReceiptTimeout time.Duration
}

type Client struct {
	backend Backend
	node    NodeRPC
	abi     abi.ABI
	address common.Address
	netID   *big.Int
	chainID *big.Int
	opts    Options
	log     *zap.Logger

	sendMu sync.Mutex // nonce read + send must not interleave
	rc     *rpc.Client
}

// Dial connects to the node at url and resolves the deployed contract from the artifact.
func Dial(ctx context.Context, url string, art Artifact, opts Options, log *zap.Logger) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial ledger node: %w", err)
	}
	c, err := New(ctx, ethclient.NewClient(rc), rc, art, opts, log)
	if err != nil {
		rc.Close()
		return nil, err
	}
	c.rc = rc
	return c, nil
}

// New resolves the contract address for the backend's network id. A missing deployment record is ErrNotDeployed.
func New(ctx context.Context, b Backend, node NodeRPC, art Artifact, opts Options, log *zap.Logger) (*Client, error) {
	parsed, err := abi.JSON(bytes.NewReader(art.ABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	netID, err := b.NetworkID(ctx)
	if err != nil {
		return nil, fmt.Errorf("network id: %w", err)
	}
	dep, ok := art.Networks[netID.String()]
	if !ok || !common.IsHexAddress(dep.Address) {
		return nil, fmt.Errorf("%w (network %s)", ErrNotDeployed, netID)
	}
	chainID, err := b.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = 8000000
	}
	if opts.ReceiptPoll <= 0 {
		opts.ReceiptPoll = time.Second
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		backend: b,
		node:    node,
		abi:     parsed,
		address: common.HexToAddress(dep.Address),
		netID:   netID,
		chainID: chainID,
		opts:    opts,
		log:     log,
	}, nil
}

func (c *Client) Address() common.Address { return c.address }
func (c *Client) NetworkID() *big.Int     { return new(big.Int).Set(c.netID) }

func (c *Client) Close() {
	if c.rc != nil {
		c.rc.Close()
	}
}

// Accounts lists the node-managed accounts (eth_accounts).
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	if c.node == nil {
		return nil, ErrNodeSignerUnset
	}
	var out []common.Address
	if err := c.node.CallContext(ctx, &out, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return out, nil
}

// PlaceOrder sends placeOrder and waits for the receipt.
func (c *Client) PlaceOrder(ctx context.Context, from Identity, in PlaceOrderInput) error {
	data, err := c.abi.Pack("placeOrder",
		big.NewInt(in.SupplierID),
		big.NewInt(unixDate(in.DeliveryDate)),
		big.NewInt(in.TotalPrice),
		toTuples(in.Lines),
	)
	if err != nil {
		return fmt.Errorf("placeOrder: pack: %w", err)
	}
	return c.transact(ctx, "placeOrder", from, data)
}

// UpdateOrderStatus sends updateOrderStatus(orderID, status) and waits for the receipt.
func (c *Client) UpdateOrderStatus(ctx context.Context, from Identity, orderID int64, status uint8) error {
	data, err := c.abi.Pack("updateOrderStatus", big.NewInt(orderID), status)
	if err != nil {
		return fmt.Errorf("updateOrderStatus: pack: %w", err)
	}
	return c.transact(ctx, "updateOrderStatus", from, data)
}

func (c *Client) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	vals, err := c.call(ctx, "getOrder", big.NewInt(orderID))
	if err != nil {
		return Order{}, err
	}
	if len(vals) != 6 {
		return Order{}, fmt.Errorf("getOrder: unexpected %d return values", len(vals))
	}
	id, ok1 := vals[0].(*big.Int)
	buyer, ok2 := vals[1].(common.Address)
	supplier, ok3 := vals[2].(*big.Int)
	delivery, ok4 := vals[3].(*big.Int)
	total, ok5 := vals[4].(*big.Int)
	status, ok6 := vals[5].(uint8)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return Order{}, errors.New("getOrder: unexpected return types")
	}
	return Order{
		OrderID:      id.Int64(),
		Buyer:        buyer,
		SupplierID:   supplier.Int64(),
		DeliveryDate: time.Unix(delivery.Int64(), 0).UTC(),
		TotalPrice:   total.Int64(),
		Status:       status,
	}, nil
}

func (c *Client) GetOrderDetails(ctx context.Context, orderID int64) ([]Line, error) {
	vals, err := c.call(ctx, "getOrderDetails", big.NewInt(orderID))
	if err != nil {
		return nil, err
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("getOrderDetails: unexpected %d return values", len(vals))
	}
	tuples := *abi.ConvertType(vals[0], new([]orderDetail)).(*[]orderDetail)
	return fromTuples(tuples), nil
}

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	start := time.Now()
	defer func() { metrics.LedgerCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds()) }()

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack: %w", method, err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: call: %w", method, err)
	}
	vals, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s: unpack: %w", method, err)
	}
	return vals, nil
}

func (c *Client) transact(ctx context.Context, method string, from Identity, data []byte) error {
	start := time.Now()
	defer func() { metrics.LedgerCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds()) }()

	var (
		hash common.Hash
		err  error
	)
	if from.Key != nil {
		hash, err = c.sendSigned(ctx, from, data)
	} else {
		hash, err = c.sendFromNode(ctx, from.Address, data)
	}
	if err != nil {
		return fmt.Errorf("%s: send: %w", method, err)
	}
	c.log.Debug("ledger tx sent", zap.String("method", method), zap.String("tx", hash.Hex()), zap.String("from", from.Address.Hex()))

	rcpt, err := c.waitReceipt(ctx, hash)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%s: transaction %s reverted", method, hash.Hex())
	}
	return nil
}

func (c *Client) sendSigned(ctx context.Context, from Identity, data []byte) (common.Hash, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, from.Address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Gas:      c.opts.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), from.Key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

type sendTxArgs struct {
	From common.Address `json:"from"`
	To   common.Address `json:"to"`
	Gas  hexutil.Uint64 `json:"gas"`
	Data hexutil.Bytes  `json:"data"`
}

func (c *Client) sendFromNode(ctx context.Context, from common.Address, data []byte) (common.Hash, error) {
	if c.node == nil {
		return common.Hash{}, ErrNodeSignerUnset
	}
	var hash common.Hash
	err := c.node.CallContext(ctx, &hash, "eth_sendTransaction", sendTxArgs{
		From: from,
		To:   c.address,
		Gas:  hexutil.Uint64(c.opts.GasLimit),
		Data: data,
	})
	return hash, err
}

func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.ReceiptPoll)
	defer ticker.Stop()
	for {
		rcpt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return rcpt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
