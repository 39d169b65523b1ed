// Package controller implements the Miner Controller (C7): the process's
// boot sequence, worker self-registration, the finalized-block fan-out to
// the event processor, and the liveness loop (spec §4.7).
package controller

import (
	"context"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/pkg/errors"

	"github.com/synapsenet/miner/chain"
	"github.com/synapsenet/miner/eventproc"
	"github.com/synapsenet/miner/internal/hostspecs"
	"github.com/synapsenet/miner/internal/minerlog"
	"github.com/synapsenet/miner/internal/state"
	"github.com/synapsenet/miner/txqueue"
)

// Controller owns the top-level run loop: one goroutine consuming
// finalized headers and fanning each block's decoded events out to the
// event processor, plus the liveness loop started alongside it.
type Controller struct {
	state   *state.State
	gateway *chain.Gateway
	queue   *txqueue.Queue
	keyring signature.KeyringPair

	log minerlog.Logger
}

// New builds a Controller. accountSeed is the same seed used everywhere
// else in the process to derive signing material; the controller needs
// its own KeyringPair copy to submit the registration call independently
// of the event processor's task-lifecycle calls. The event processor
// itself is supplied later to Run, since it can only be built once Boot
// has resolved this miner's on-chain worker id.
func New(st *state.State, gw *chain.Gateway, q *txqueue.Queue, accountSeed string) (*Controller, error) {
	kr, err := signature.KeyringPairFromSecret(accountSeed, 42)
	if err != nil {
		return nil, errors.Wrap(err, "derive controller signing keyring")
	}
	return &Controller{
		state:   st,
		gateway: gw,
		queue:   q,
		keyring: kr,
		log:     minerlog.Module("controller"),
	}, nil
}

// PublicKey returns the raw public key backing this controller's signing
// keyring, used by the caller to resolve this account's chain id and
// worker id.
func (c *Controller) PublicKey() []byte {
	return c.keyring.PublicKey
}

// Boot runs the one-time startup sequence: register the worker on chain if
// it isn't already known (spec §4.7 "Registration"), submitting specs (the
// host specs as resolved by ResolveSpecs).
func (c *Controller) Boot(ctx context.Context, specs hostspecs.Specs) error {
	registered, err := c.isRegistered()
	if err != nil {
		return errors.Wrap(err, "check worker registration")
	}
	if registered {
		c.log.Info("worker already registered, skipping registration call")
		return nil
	}

	c.log.Info("registering worker", "domain", specs.Domain, "ram_bytes", specs.RAMBytes, "cpu_cores", specs.CPUCores)

	result := <-c.queue.Enqueue(ctx, func(ctx context.Context) (chain.Outcome, error) {
		if _, err := c.gateway.SubmitThenWatch(
			"Marketplace", "register_worker", c.keyring,
			specs.Domain, specs.Latitude, specs.Longitude, specs.RAMBytes, specs.StorageGB, specs.CPUCores,
		); err != nil {
			return chain.Outcome{}, err
		}
		return chain.Outcome{Kind: chain.OutcomeRegistrationInfo}, nil
	})
	if result.Err != nil {
		return errors.Wrap(result.Err, "register worker")
	}
	return nil
}

// isRegistered probes the Marketplace.Workers storage map for this
// account; a missing entry means registration is still required.
func (c *Controller) isRegistered() (bool, error) {
	key, err := c.gateway.StorageKey("Marketplace", "Workers", c.keyring.PublicKey)
	if err != nil {
		return false, errors.Wrap(err, "build worker storage key")
	}
	raw, err := c.gateway.IterStorage(key)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

// Run subscribes to finalized block headers and fans each one's decoded
// events out to the event processor in block order. It blocks until ctx
// is cancelled or the subscription channel closes. A closed subscription
// is returned as an error and is not retried here; cmd/miner treats it as
// fatal and exits the process.
func (c *Controller) Run(ctx context.Context, proc *eventproc.Processor) error {
	sub, err := c.gateway.SubscribeFinalizedBlocks()
	if err != nil {
		return errors.Wrap(err, "subscribe finalized blocks")
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case header, ok := <-sub.Chan():
			if !ok {
				return errors.New("finalized-block subscription closed")
			}

			hash, err := c.gateway.BlockHash(uint64(header.Number))
			if err != nil {
				c.log.Error("failed to resolve block hash", "number", header.Number, "err", err)
				continue
			}

			events, err := c.gateway.EventsAt(hash)
			if err != nil {
				c.log.Error("failed to fetch block events", "number", header.Number, "err", err)
				continue
			}

			proc.HandleBlock(ctx, chain.Block{Hash: hash, Number: uint64(header.Number), Events: events})
		}
	}
}
