package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	facilitator "github.com/x402-teller/facilitator-go"
)

// fileConfig is the YAML configuration file shape. Private keys are taken
// from the environment, never from the file.
type fileConfig struct {
	Listen           string            `yaml:"listen"`
	Networks         []string          `yaml:"networks"`
	SolanaFeePayer   string            `yaml:"solanaFeePayer"`
	MinConfirmations uint64            `yaml:"minConfirmations"`
	LedgerDSN        string            `yaml:"ledgerDSN"`
	EnableDashboard  bool              `yaml:"enableDashboard"`
	Routes           yaml.Node         `yaml:"routes"`
	RPCOverrides     map[string]string `yaml:"rpcOverrides"`
	LogLevel         string            `yaml:"logLevel"`
}

const defaultListen = ":8080"

// loadConfig reads the YAML file at path and merges in the key material from
// EVM_PRIVATE_KEY and SOLANA_PRIVATE_KEY.
func loadConfig(path string) (facilitator.Config, string, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return facilitator.Config{}, "", "", fmt.Errorf("failed to read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return facilitator.Config{}, "", "", fmt.Errorf("failed to parse config: %w", err)
	}

	routes, err := facilitator.ParseRoutesNode(&fc.Routes)
	if err != nil {
		return facilitator.Config{}, "", "", err
	}

	config := facilitator.Config{
		EVMPrivateKey:    os.Getenv("EVM_PRIVATE_KEY"),
		SolanaPrivateKey: os.Getenv("SOLANA_PRIVATE_KEY"),
		SolanaFeePayer:   fc.SolanaFeePayer,
		Networks:         fc.Networks,
		MinConfirmations: fc.MinConfirmations,
		LedgerDSN:        fc.LedgerDSN,
		EnableDashboard:  fc.EnableDashboard,
		Routes:           routes,
		RPCOverrides:     fc.RPCOverrides,
	}
	if dsn := os.Getenv("LEDGER_DSN"); dsn != "" {
		config.LedgerDSN = dsn
	}

	listen := fc.Listen
	if listen == "" {
		listen = defaultListen
	}
	return config, listen, fc.LogLevel, nil
}
