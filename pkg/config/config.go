// Copyright 2025 Certen Protocol
//
// Flat, env-driven configuration for the swap coordinator, following the
// same getEnv*/Validate shape as the rest of the Certen service family.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every timing, threshold and signing parameter the
// coordinator's components (C3-C7) read at startup. All timing fields are
// expressed in milliseconds, all timelocks in seconds, confirmations as
// small integers, and amounts as big-integer strings - matching how the
// values travel on the wire.
type Config struct {
	// Chain endpoints / adapters
	SourceChainRPC      string
	DestinationChainRPC string

	// C3 Message Relay
	ProcessingIntervalMS int
	MaxAttempts          int
	RetryDelayMS         int
	RelayCleanupAgeMS    int64

	// C4 State Synchronization
	FinalityCheckIntervalMS int
	SrcConfirmations        uint32
	DstConfirmations        uint32
	OrderCleanupAgeMS       int64

	// C5 Order Manager / signing domain
	MinTimelockS       int64
	MaxTimelockS       int64
	MinOrderSize       string
	MaxSlippage        float64
	DefaultRelayerFee  string
	ChainID            int64
	VerifyingContract  string
	DomainName         string
	DomainVersion      string
	CoordinatorAddress string
	CoordinatorKeyHex  string

	// C6 Execution Engine
	ExecutionIntervalMS int
	MaxOrderAgeMS       int64

	DataDir  string
	LogLevel string
}

// Load reads configuration from environment variables, applying the
// spec-defined defaults for every timing/threshold key. Call Validate()
// afterward before starting the coordinator.
func Load() (*Config, error) {
	cfg := &Config{
		SourceChainRPC:      getEnv("SOURCE_CHAIN_RPC", ""),
		DestinationChainRPC: getEnv("DESTINATION_CHAIN_RPC", ""),

		ProcessingIntervalMS: getEnvInt("PROCESSING_INTERVAL_MS", 2000),
		MaxAttempts:          getEnvInt("MAX_ATTEMPTS", 3),
		RetryDelayMS:         getEnvInt("RETRY_DELAY_MS", 5000),
		RelayCleanupAgeMS:    getEnvInt64("RELAY_CLEANUP_AGE_MS", 24*3600*1000),

		FinalityCheckIntervalMS: getEnvInt("FINALITY_CHECK_INTERVAL_MS", 10000),
		SrcConfirmations:        uint32(getEnvInt("SRC_CONFIRMATIONS", 12)),
		DstConfirmations:        uint32(getEnvInt("DST_CONFIRMATIONS", 5)),
		OrderCleanupAgeMS:       getEnvInt64("ORDER_CLEANUP_AGE_MS", 24*3600*1000),

		MinTimelockS:      getEnvInt64("MIN_TIMELOCK_S", 3600),
		MaxTimelockS:      getEnvInt64("MAX_TIMELOCK_S", 604800),
		MinOrderSize:      getEnv("MIN_ORDER_SIZE", "0"),
		MaxSlippage:       getEnvFloat("MAX_SLIPPAGE", 0.05),
		DefaultRelayerFee: getEnv("DEFAULT_RELAYER_FEE", "0"),
		ChainID:           getEnvInt64("CHAIN_ID", 11155111),
		VerifyingContract: getEnv("VERIFYING_CONTRACT", ""),
		DomainName:        getEnv("DOMAIN_NAME", "SwapCoordinator"),
		DomainVersion:     getEnv("DOMAIN_VERSION", "1"),
		CoordinatorAddress: getEnv("COORDINATOR_ADDRESS", ""),
		CoordinatorKeyHex: getEnv("COORDINATOR_PRIVATE_KEY", ""),

		ExecutionIntervalMS: getEnvInt("EXECUTION_INTERVAL_MS", 10000),
		MaxOrderAgeMS:       getEnvInt64("MAX_ORDER_AGE_MS", 3600000),

		DataDir:  getEnv("DATA_DIR", "./data"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// MergeYAML parses a YAML document carrying the same timing/threshold keys
// as Load, layering it under whatever Load already produced: YAML values
// fill in anything the environment didn't set. Call order is
// cfg, _ := Load(); cfg.MergeYAML(path).
func (c *Config) MergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read yaml config: %w", err)
	}
	var y yamlConfig
	if err := yamlUnmarshal(data, &y); err != nil {
		return fmt.Errorf("parse yaml config: %w", err)
	}
	y.applyTo(c)
	return nil
}

// Validate checks that all required configuration is present and internally
// consistent before the coordinator starts any component loops.
func (c *Config) Validate() error {
	var errs []string

	if c.SourceChainRPC == "" {
		errs = append(errs, "SOURCE_CHAIN_RPC is required but not set")
	}
	if c.DestinationChainRPC == "" {
		errs = append(errs, "DESTINATION_CHAIN_RPC is required but not set")
	}
	if c.CoordinatorKeyHex == "" {
		errs = append(errs, "COORDINATOR_PRIVATE_KEY is required but not set")
	}
	if c.VerifyingContract == "" {
		errs = append(errs, "VERIFYING_CONTRACT is required but not set")
	}
	if c.MinTimelockS <= 0 || c.MaxTimelockS <= c.MinTimelockS {
		errs = append(errs, "MIN_TIMELOCK_S/MAX_TIMELOCK_S must form a positive, increasing bound")
	}
	if c.MaxSlippage < 0 || c.MaxSlippage > 1 {
		errs = append(errs, "MAX_SLIPPAGE must be in [0, 1]")
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, "MAX_ATTEMPTS must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
