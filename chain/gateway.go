package chain

import (
	"fmt"
	"sync"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	gsrpctypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/pkg/errors"

	"github.com/synapsenet/miner/internal/minerlog"
)

// Gateway is the process-wide handle to the remote parachain (spec §4.1).
// Construction is sync.Once-guarded at the package level: the whole
// process shares exactly one Gateway, matching the "constructed once ...
// cached in a process-wide cell" contract.
type Gateway struct {
	api  *gsrpc.SubstrateAPI
	meta *gsrpctypes.Metadata
	log  minerlog.Logger

	mu sync.RWMutex
}

var (
	once   sync.Once
	shared *Gateway
	initErr error
)

// Dial opens (once) the WebSocket connection to url and returns the
// shared Gateway. Subsequent calls with any url return the same instance;
// the process is only ever configured with one parachain endpoint.
func Dial(url string) (*Gateway, error) {
	once.Do(func() {
		api, err := gsrpc.NewSubstrateAPI(url)
		if err != nil {
			initErr = errors.Wrap(err, "dial parachain")
			return
		}
		meta, err := api.RPC.State.GetMetadataLatest()
		if err != nil {
			initErr = errors.Wrap(err, "fetch chain metadata")
			return
		}
		shared = &Gateway{
			api:  api,
			meta: meta,
			log:  minerlog.Module("chain"),
		}
	})
	return shared, initErr
}

// Health fetches the latest block header to confirm the RPC connection is
// still live; consumed by the controller's liveness loop (spec §4.7 added).
func (g *Gateway) Health() error {
	_, err := g.api.RPC.Chain.GetHeaderLatest()
	if err != nil {
		return errors.Wrap(err, "chain health check")
	}
	return nil
}

// SubscribeFinalizedBlocks streams finalized block headers; it does not
// fetch or decode their events (callers use BlockHash and EventsAt for
// that). The caller owns reconnect policy (spec §4.1:
// "on transport failure the caller reconnects (policy lives in C7)").
func (g *Gateway) SubscribeFinalizedBlocks() (*gsrpc.ChainSubscription, error) {
	sub, err := g.api.RPC.Chain.SubscribeFinalizedHeads()
	if err != nil {
		return nil, errors.Wrap(err, "subscribe finalized heads")
	}
	return sub, nil
}

// BlockHash resolves a block number to its hash, used by the controller's
// finalized-header subscription loop to fetch that block's events.
func (g *Gateway) BlockHash(number uint64) (gsrpctypes.Hash, error) {
	hash, err := g.api.RPC.Chain.GetBlockHash(number)
	if err != nil {
		return gsrpctypes.Hash{}, errors.Wrap(err, "resolve block hash")
	}
	return hash, nil
}

// EventsAt fetches and decodes the System.Events storage item for the given
// block hash, returning the same trichotomy DecodeEvents produces.
func (g *Gateway) EventsAt(hash gsrpctypes.Hash) ([]DecodedEvent, error) {
	raw, err := g.api.RPC.State.GetStorageRaw(eventsStorageKey(g.meta), hash)
	if err != nil {
		return nil, errors.Wrap(err, "fetch events for block")
	}
	if raw == nil {
		return nil, nil
	}
	return g.DecodeEvents(gsrpctypes.EventRecordsRaw(*raw))
}

// workerRecord is the minimal prefix of the Marketplace.Workers storage
// value this gateway decodes: just the worker id the chain assigned at
// registration. The remaining fields (declared specs, status) are only
// ever read back by the chain's own logic, not by this miner.
type workerRecord struct {
	WorkerID gsrpctypes.U64
}

// WorkerID resolves the worker id the chain assigned to ownerPubKey,
// for use once Boot has confirmed the account is registered.
func (g *Gateway) WorkerID(ownerPubKey []byte) (uint64, error) {
	key, err := g.StorageKey("Marketplace", "Workers", ownerPubKey)
	if err != nil {
		return 0, err
	}
	raw, err := g.IterStorage(key)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, errors.New("worker not registered")
	}
	var rec workerRecord
	if err := gsrpctypes.DecodeFromBytes(raw, &rec); err != nil {
		return 0, errors.Wrap(err, "decode worker record")
	}
	return uint64(rec.WorkerID), nil
}

// IterStorage fetches a single storage value at the given encoded key; a
// nil result with no error means the key is absent.
func (g *Gateway) IterStorage(key gsrpctypes.StorageKey) ([]byte, error) {
	raw, err := g.api.RPC.State.GetStorageRawLatest(key)
	if err != nil {
		return nil, errors.Wrap(err, "read storage")
	}
	if raw == nil {
		return nil, nil
	}
	return *raw, nil
}

// StorageKey builds the encoded key for a module/method storage item,
// optionally indexed by one argument (used for the worker-registration
// lookup by owner public key).
func (g *Gateway) StorageKey(module, method string, arg []byte) (gsrpctypes.StorageKey, error) {
	if arg == nil {
		return gsrpctypes.CreateStorageKey(g.meta, module, method)
	}
	return gsrpctypes.CreateStorageKey(g.meta, module, method, arg)
}

// SubmitThenWatch signs extrinsic call with keypair, submits it, and waits
// for a finalized inclusion, returning the events emitted in that block.
// No retry logic lives here; callers run this through the transaction
// queue (C2), which owns backoff and acceptable-error suppression.
func (g *Gateway) SubmitThenWatch(callModule, callMethod string, keypair signature.KeyringPair, args ...interface{}) (gsrpctypes.EventRecordsRaw, error) {
	call, err := gsrpctypes.NewCall(g.meta, fmt.Sprintf("%s.%s", callModule, callMethod), args...)
	if err != nil {
		return nil, errors.Wrap(err, "build call")
	}

	ext := gsrpctypes.NewExtrinsic(call)

	genesisHash, err := g.api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return nil, errors.Wrap(err, "fetch genesis hash")
	}

	rv, err := g.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return nil, errors.Wrap(err, "fetch runtime version")
	}

	key, err := gsrpctypes.CreateStorageKey(g.meta, "System", "Account", keypair.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "build account storage key")
	}

	var accountInfo gsrpctypes.AccountInfo
	ok, err := g.api.RPC.State.GetStorageLatest(key, &accountInfo)
	if err != nil {
		return nil, errors.Wrap(err, "read account info")
	}
	if !ok {
		return nil, errors.New("account info not found for signing key")
	}

	options := gsrpctypes.SignatureOptions{
		BlockHash:          genesisHash,
		Era:                gsrpctypes.ExtrinsicEra{IsMortalEra: false},
		GenesisHash:        genesisHash,
		Nonce:              gsrpctypes.NewUCompactFromUInt(uint64(accountInfo.Nonce)),
		SpecVersion:        rv.SpecVersion,
		Tip:                gsrpctypes.NewUCompactFromUInt(0),
		TransactionVersion: rv.TransactionVersion,
	}

	if err := ext.Sign(keypair, options); err != nil {
		return nil, errors.Wrap(err, "sign extrinsic")
	}

	sub, err := g.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		return nil, errors.Wrap(err, "submit extrinsic")
	}
	defer sub.Unsubscribe()

	for status := range sub.Chan() {
		if status.IsFinalized {
			blockHash := status.AsFinalized
			raw, err := g.api.RPC.State.GetStorageRaw(eventsStorageKey(g.meta), blockHash)
			if err != nil {
				return nil, errors.Wrap(err, "fetch events for finalized block")
			}
			if raw == nil {
				return gsrpctypes.EventRecordsRaw{}, nil
			}
			events := gsrpctypes.EventRecordsRaw(*raw)
			// Finalized inclusion is not dispatch success: a System.ExtrinsicFailed
			// event in this same block means the call itself was rejected by the
			// runtime even though the extrinsic landed. Surface that as the
			// returned error so the transaction queue's acceptable-error
			// suppression (and, failing that, its retry-cap escalation) has a
			// real DispatchError to act on instead of treating this as success.
			if derr := g.extrinsicFailedError(events); derr != nil {
				return events, derr
			}
			return events, nil
		}
		if status.IsDropped || status.IsInvalid || status.IsUsurped {
			return nil, errors.Errorf("extrinsic failed: %+v", status)
		}
	}
	return nil, errors.New("extrinsic watch channel closed before finalization")
}

func eventsStorageKey(meta *gsrpctypes.Metadata) gsrpctypes.StorageKey {
	key, _ := gsrpctypes.CreateStorageKey(meta, "System", "Events")
	return key
}
