package facilitator

import "errors"

// Configuration errors returned by Config.Validate and New.
var (
	// ErrNoPrivateKey indicates neither an EVM nor a Solana private key was
	// configured.
	ErrNoPrivateKey = errors.New("facilitator: at least one private key is required")

	// ErrNoNetworks indicates an empty network list.
	ErrNoNetworks = errors.New("facilitator: at least one network is required")

	// ErrFeePayerRequired indicates a Solana network was configured without a
	// fee payer address.
	ErrFeePayerRequired = errors.New("facilitator: fee payer address is required for Solana networks")

	// ErrRoutesRequired indicates the dashboard was enabled without route
	// configuration.
	ErrRoutesRequired = errors.New("facilitator: route configuration is required when the dashboard is enabled")

	// ErrUnknownNetwork indicates a configured network is not supported by
	// any gateway.
	ErrUnknownNetwork = errors.New("facilitator: unknown network")
)
