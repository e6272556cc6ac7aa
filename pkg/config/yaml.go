package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlConfig mirrors the subset of Config that operators tune via a
// checked-in file rather than per-process environment variables: the
// timing intervals and thresholds from spec section 6, not secrets.
type yamlConfig struct {
	ProcessingIntervalMS    *int     `yaml:"processing_interval_ms"`
	FinalityCheckIntervalMS *int     `yaml:"finality_check_interval_ms"`
	ExecutionIntervalMS     *int     `yaml:"execution_interval_ms"`
	MaxAttempts             *int     `yaml:"max_attempts"`
	RetryDelayMS            *int     `yaml:"retry_delay_ms"`
	SrcConfirmations        *uint32  `yaml:"src_confirmations"`
	DstConfirmations        *uint32  `yaml:"dst_confirmations"`
	MinTimelockS            *int64   `yaml:"min_timelock_s"`
	MaxTimelockS            *int64   `yaml:"max_timelock_s"`
	MaxOrderAgeMS           *int64   `yaml:"max_order_age_ms"`
	MinOrderSize            *string  `yaml:"min_order_size"`
	MaxSlippage             *float64 `yaml:"max_slippage"`
	DefaultRelayerFee       *string  `yaml:"default_relayer_fee"`
	ChainID                 *int64   `yaml:"chain_id"`
	VerifyingContract       *string  `yaml:"verifying_contract"`
}

// yamlUnmarshal decodes data into out, dropping every key whose
// upper-cased name is set as an environment variable (each yaml key is
// the lower-case form of the env var Load reads), so env values win.
func yamlUnmarshal(data []byte, out *yamlConfig) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range raw {
		if os.Getenv(strings.ToUpper(k)) != "" {
			delete(raw, k)
		}
	}
	filtered, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(filtered, out)
}

// applyTo layers non-nil YAML fields onto cfg. Keys whose environment
// variable is set were already dropped by yamlUnmarshal, so env wins.
func (y *yamlConfig) applyTo(cfg *Config) {
	if y.ProcessingIntervalMS != nil {
		cfg.ProcessingIntervalMS = *y.ProcessingIntervalMS
	}
	if y.FinalityCheckIntervalMS != nil {
		cfg.FinalityCheckIntervalMS = *y.FinalityCheckIntervalMS
	}
	if y.ExecutionIntervalMS != nil {
		cfg.ExecutionIntervalMS = *y.ExecutionIntervalMS
	}
	if y.MaxAttempts != nil {
		cfg.MaxAttempts = *y.MaxAttempts
	}
	if y.RetryDelayMS != nil {
		cfg.RetryDelayMS = *y.RetryDelayMS
	}
	if y.SrcConfirmations != nil {
		cfg.SrcConfirmations = *y.SrcConfirmations
	}
	if y.DstConfirmations != nil {
		cfg.DstConfirmations = *y.DstConfirmations
	}
	if y.MinTimelockS != nil {
		cfg.MinTimelockS = *y.MinTimelockS
	}
	if y.MaxTimelockS != nil {
		cfg.MaxTimelockS = *y.MaxTimelockS
	}
	if y.MaxOrderAgeMS != nil {
		cfg.MaxOrderAgeMS = *y.MaxOrderAgeMS
	}
	if y.MinOrderSize != nil {
		cfg.MinOrderSize = *y.MinOrderSize
	}
	if y.MaxSlippage != nil {
		cfg.MaxSlippage = *y.MaxSlippage
	}
	if y.DefaultRelayerFee != nil {
		cfg.DefaultRelayerFee = *y.DefaultRelayerFee
	}
	if y.ChainID != nil {
		cfg.ChainID = *y.ChainID
	}
	if y.VerifyingContract != nil {
		cfg.VerifyingContract = *y.VerifyingContract
	}
}
