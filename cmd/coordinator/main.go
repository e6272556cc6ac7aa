// Command coordinator wires the swap coordinator's components together:
// load configuration, construct the chain adapters and signing key, start
// every component's cooperative loop, and shut down in reverse order on
// SIGINT/SIGTERM. Grounded on the teacher's main.go startup sequence
// (config, components, signal-driven shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/swapcoordinator/pkg/chainadapter"
	"github.com/certen/swapcoordinator/pkg/config"
	"github.com/certen/swapcoordinator/pkg/events"
	"github.com/certen/swapcoordinator/pkg/execution"
	"github.com/certen/swapcoordinator/pkg/kvdb"
	"github.com/certen/swapcoordinator/pkg/message"
	"github.com/certen/swapcoordinator/pkg/order"
	"github.com/certen/swapcoordinator/pkg/relay"
	"github.com/certen/swapcoordinator/pkg/statesync"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)

	var (
		configPath = flag.String("config", "", "path to a YAML config file (layered under env vars)")
		showHelp   = flag.Bool("help", false, "show help message")
	)
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if *configPath != "" {
		if err := cfg.MergeYAML(*configPath); err != nil {
			log.Fatalf("load yaml configuration: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	signer, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.CoordinatorKeyHex, "0x"))
	if err != nil {
		log.Fatalf("parse coordinator private key: %v", err)
	}
	relayerAddress := crypto.PubkeyToAddress(signer.PublicKey).Hex()
	if cfg.CoordinatorAddress != "" && !strings.EqualFold(cfg.CoordinatorAddress, relayerAddress) {
		log.Fatalf("COORDINATOR_ADDRESS (%s) does not match the address derived from COORDINATOR_PRIVATE_KEY (%s)", cfg.CoordinatorAddress, relayerAddress)
	}

	bus := events.NewBus()

	log.Printf("[Coordinator] opening state store at %s", cfg.DataDir)
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	db, err := dbm.NewGoLevelDB("coordinator", cfg.DataDir)
	if err != nil {
		log.Fatalf("open state store: %v", err)
	}
	kv := kvdb.NewKVAdapter(db)

	log.Println("[Coordinator] connecting chain adapters...")
	source, err := chainadapter.NewEVMAdapter(cfg.SourceChainRPC, nil)
	if err != nil {
		log.Fatalf("connect source chain adapter: %v", err)
	}
	destination := chainadapter.NewTONAdapter(cfg.DestinationChainRPC)

	validator := message.NewValidator(cfg.MinTimelockS, cfg.MaxTimelockS, relayerAddress)

	orders := order.New(order.Config{
		Domain: order.Domain{
			Name:              cfg.DomainName,
			Version:           cfg.DomainVersion,
			ChainID:           cfg.ChainID,
			VerifyingContract: cfg.VerifyingContract,
		},
		DefaultTimelock:   time.Duration(cfg.MinTimelockS) * time.Second,
		MinTimelock:       time.Duration(cfg.MinTimelockS) * time.Second,
		MaxTimelock:       time.Duration(cfg.MaxTimelockS) * time.Second,
		DefaultRelayerFee: cfg.DefaultRelayerFee,
	}, signer, gasPriceProvider(source), bus)

	rel := relay.New(relay.Config{
		ProcessingInterval: time.Duration(cfg.ProcessingIntervalMS) * time.Millisecond,
		MaxAttempts:        cfg.MaxAttempts,
		BaseRetryDelay:     time.Duration(cfg.RetryDelayMS) * time.Millisecond,
		DrainTimeout:       5 * time.Second,
	}, validator, source, destination, bus)

	ss := statesync.New(statesync.Config{
		FinalityCheckInterval: time.Duration(cfg.FinalityCheckIntervalMS) * time.Millisecond,
		SrcConfirmations:      cfg.SrcConfirmations,
		DstConfirmations:      cfg.DstConfirmations,
		CleanupAge:            24 * time.Hour,
	}, kv, source, destination, bus)

	engine := execution.New(execution.Config{
		TickInterval: time.Duration(cfg.ExecutionIntervalMS) * time.Millisecond,
		MaxPerTick:   10,
		MaxSlippage:  cfg.MaxSlippage,
		MinOrderAge:  0,
		MaxOrderAge:  time.Duration(cfg.MaxOrderAgeMS) * time.Millisecond,
		MinOrderSize: cfg.MinOrderSize,
	}, orders, rel, ss, source, bus, signer, settlementFunc(), refundFunc())

	wireEventBridges(bus, engine)

	if err := ss.Load(); err != nil {
		log.Fatalf("restore persisted state: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	rel.Start(ctx)
	ss.Start(ctx)
	engine.Start(ctx)
	go runHousekeeping(ctx, rel, ss, orders)

	log.Println("[Coordinator] all components started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Coordinator] shutting down...")
	cancel()
	engine.Stop()
	ss.Stop()
	rel.Stop()
	log.Println("[Coordinator] stopped")
}

// gasPriceProvider bridges the source adapter's chain-specific gas price
// lookup to order.GasPriceProvider, the injected boundary EstimateFees
// reads from.
func gasPriceProvider(source *chainadapter.EVMAdapter) order.GasPriceProvider {
	return func(ctx context.Context) (*big.Int, error) {
		return source.SuggestGasPrice(ctx)
	}
}

// settlementFunc and refundFunc are the boundary between this coordinator's
// off-chain orchestration and the on-chain escrow/bridge contract calls
// that actually move funds - encoding and sending contract calls is left to
// a contract-aware submitter, not this coordinator. A real deployment
// replaces these with submitters that encode and send the appropriate
// contract call through the adapters above.
func settlementFunc() execution.SettlementFunc {
	return func(ctx context.Context, target, match *order.Entry, matchedAmount, matchedPrice string) (string, error) {
		return "", fmt.Errorf("local settlement requires a contract-aware submitter; none configured")
	}
}

func refundFunc() execution.RefundFunc {
	return func(ctx context.Context, p *execution.PendingExecution) (string, error) {
		return "", fmt.Errorf("HTLC refund requires a contract-aware submitter; none configured")
	}
}

// wireEventBridges connects relay and state-sync events to execution-engine
// reactions and logs the rest: a reached timelock triggers an automatic
// refund, while delivery failures and finality/mismatch notices are surfaced
// for operators.
func wireEventBridges(bus *events.Bus, engine *execution.Engine) {
	logger := log.New(log.Writer(), "[Glue] ", log.LstdFlags)

	bus.Subscribe(events.TimelockReached, func(ev events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := engine.CancelExecution(ctx, ev.OrderID); err != nil {
			logger.Printf("auto-refund for order %s: %v", ev.OrderID, err)
		}
	})

	bus.Subscribe(events.MessageFailed, func(ev events.Event) {
		logger.Printf("message %s failed delivery: %s", ev.QueuedID, ev.Detail)
	})
	bus.Subscribe(events.SourceFinalized, func(ev events.Event) {
		logger.Printf("order %s: source chain finalized", ev.OrderID)
	})
	bus.Subscribe(events.DestinationFinalized, func(ev events.Event) {
		logger.Printf("order %s: destination chain finalized", ev.OrderID)
	})
	bus.Subscribe(events.CryptoMismatch, func(ev events.Event) {
		logger.Printf("ALERT: secret/hashlock mismatch on order %s (tx %s)", ev.OrderID, ev.TxHash)
	})
}

// runHousekeeping periodically runs each component's cleanup/expiry sweep;
// these are callable operations rather than folded into the components'
// own cooperative ticks, so something has to drive them.
func runHousekeeping(ctx context.Context, rel *relay.Relay, ss *statesync.StateSync, orders *order.Manager) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := orders.CleanupExpired(); n > 0 {
				log.Printf("[Coordinator] expired %d stale order-book entries", n)
			}
			if n := rel.Cleanup(24 * time.Hour); n > 0 {
				log.Printf("[Coordinator] cleaned up %d terminal queued messages", n)
			}
			if n := ss.Cleanup(); n > 0 {
				log.Printf("[Coordinator] cleaned up %d terminal tracked orders", n)
			}
		}
	}
}

func printHelp() {
	fmt.Println("coordinator - off-chain cross-chain atomic-swap coordinator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  coordinator [flags]")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Configuration is read from environment variables (see pkg/config) and,")
	fmt.Println("optionally, a YAML file passed via -config to override timing and")
	fmt.Println("threshold settings.")
}
