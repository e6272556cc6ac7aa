package chainadapter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/swapcoordinator/pkg/message"
)

// TxSubmitter performs the actual on-chain submission for msg and returns
// its transaction hash. Contract ABI encoding and wallet management are
// out of scope for this coordinator - the deployment wires a concrete
// submitter in (typically one that calls an escrow/bridge contract).
type TxSubmitter func(ctx context.Context, msg *message.Message) (common.Hash, error)

// EVMAdapter is the source-chain Adapter for an EVM-compatible chain,
// grounded on the teacher's ethereum.Client: a thin wrapper over
// ethclient.Client used only to read chain state (tx receipts, block
// numbers), never to encode contract calls itself.
type EVMAdapter struct {
	client   *ethclient.Client
	submit   TxSubmitter
	eventLog []Event // in-memory cursor source for PollSince; a real
	// deployment backs this with eth_getLogs against the bridge contract.
}

// NewEVMAdapter dials url and wraps the resulting client. submit performs
// the chain-specific contract call; it may be nil for a read-only adapter
// used only for Verify/Confirmations in tests.
func NewEVMAdapter(url string, submit TxSubmitter) (*EVMAdapter, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM chain: %w", err)
	}
	return &EVMAdapter{client: client, submit: submit}, nil
}

func (a *EVMAdapter) Submit(ctx context.Context, msg *message.Message) (string, error) {
	if a.submit == nil {
		return "", message.New(message.CodeInvalidFormat, "no tx submitter configured for this adapter")
	}
	hash, err := a.submit(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("submit to EVM chain: %w", err)
	}
	return hash.Hex(), nil
}

func (a *EVMAdapter) Verify(ctx context.Context, txID string) (bool, error) {
	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(txID))
	if err != nil {
		if err == ethereum.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("fetch EVM receipt: %w", err)
	}
	return receipt.Status == types.ReceiptStatusSuccessful, nil
}

func (a *EVMAdapter) Confirmations(ctx context.Context, txID string) (uint32, error) {
	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(txID))
	if err != nil {
		if err == ethereum.NotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("fetch EVM receipt: %w", err)
	}
	latest, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch EVM block number: %w", err)
	}
	if latest < receipt.BlockNumber.Uint64() {
		return 0, nil
	}
	return uint32(latest-receipt.BlockNumber.Uint64()) + 1, nil
}

func (a *EVMAdapter) Subscribe(ctx context.Context, filter EventFilter, sink Sink) error {
	go func() {
		cursor := ""
		ticker := time.NewTicker(subscribePollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			events, next, err := a.PollSince(ctx, cursor)
			if err != nil {
				return
			}
			cursor = next
			for _, e := range events {
				if filter.matches(e) {
					sink(e)
				}
			}
		}
	}()
	return nil
}

func (a *EVMAdapter) PollSince(ctx context.Context, cursor string) ([]Event, string, error) {
	// The out-of-scope RPC boundary: a real deployment replaces eventLog
	// with filtered eth_getLogs calls against the bridge contract. This
	// adapter only defines the shape events take once they arrive.
	var out []Event
	for _, e := range a.eventLog {
		if e.Cursor > cursor {
			out = append(out, e)
		}
	}
	next := cursor
	if len(out) > 0 {
		next = out[len(out)-1].Cursor
	}
	return out, next, nil
}

// PushEvent lets a test (or the real log-polling loop once wired) feed an
// observed event into the adapter's in-memory cursor source.
func (a *EVMAdapter) PushEvent(e Event) {
	a.eventLog = append(a.eventLog, e)
}

// SuggestGasPrice reports the source chain's current suggested gas price,
// grounded on the teacher's ethereum.Client.GetGasPrice helper; C5's
// EstimateFees multiplies this by a fixed gas-unit estimate.
func (a *EVMAdapter) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest EVM gas price: %w", err)
	}
	return price, nil
}
