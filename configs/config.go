// Package configs loads configs/config.yml, the contract-client wiring
// (pool/router addresses and ABI paths) the pool registry and RPC fan-out
// bootstrap from. This is independent of internal/config's trading-
// parameter precedence chain (spec §5/§6) — it answers "which contracts
// exist" rather than "how should the strategy behave".
package configs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the entire configuration structure from config.yml.
type Config struct {
	RPC            string                             `yaml:"rpc"`
	ExchangeID     string                             `yaml:"exchange_id"`
	WrappedNative  string                             `yaml:"wrapped_native"`
	ContractClient map[string]ContractClientYAMLData `yaml:"contract_client"`
}

// ContractClientYAMLData is one contract's address/ABI wiring from YAML.
type ContractClientYAMLData struct {
	Address string `yaml:"address"`
	ABI     string `yaml:"abi"`
}

// LoadConfig reads and parses config.yml into a Config struct.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &config, nil
}
