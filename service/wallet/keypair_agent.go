package wallet

import (
	"context"
	"fmt"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/txnbuild"
)

// KeypairAgent is an in-process Agent backed by a local keypair.
// It exists for tests and headless CLI use; production deployments talk to
// an external wallet agent so seeds never enter this process.
type KeypairAgent struct {
	kp      *keypair.Full
	network string
	allowed bool
}

// NewKeypairAgent creates an agent from a full keypair.
func NewKeypairAgent(kp *keypair.Full, network string) *KeypairAgent {
	return &KeypairAgent{kp: kp, network: network}
}

// NewKeypairAgentFromSeed creates an agent from a strkey-encoded seed ("S...").
func NewKeypairAgentFromSeed(seed, network string) (*KeypairAgent, error) {
	kp, err := keypair.ParseFull(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	return &KeypairAgent{kp: kp, network: network}, nil
}

func (a *KeypairAgent) IsConnected(ctx context.Context) (bool, error) {
	return true, nil
}

func (a *KeypairAgent) IsAllowed(ctx context.Context) (bool, error) {
	return a.allowed, nil
}

func (a *KeypairAgent) RequestAccess(ctx context.Context) error {
	a.allowed = true
	return nil
}

func (a *KeypairAgent) Address(ctx context.Context) (string, error) {
	return a.kp.Address(), nil
}

func (a *KeypairAgent) Network(ctx context.Context) (string, error) {
	return a.network, nil
}

// SignTransaction parses the envelope, signs it with the local keypair for
// the given network passphrase, and returns the signed envelope.
func (a *KeypairAgent) SignTransaction(ctx context.Context, envelopeXDR, networkPassphrase string) (string, error) {
	generic, err := txnbuild.TransactionFromXDR(envelopeXDR)
	if err != nil {
		return "", &SigningError{Reason: fmt.Sprintf("invalid envelope: %v", err)}
	}

	tx, ok := generic.Transaction()
	if !ok {
		return "", &SigningError{Reason: "envelope is not a simple transaction"}
	}

	signed, err := tx.Sign(networkPassphrase, a.kp)
	if err != nil {
		return "", &SigningError{Reason: err.Error()}
	}

	out, err := signed.Base64()
	if err != nil {
		return "", &SigningError{Reason: err.Error()}
	}
	return out, nil
}
