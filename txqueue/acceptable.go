package txqueue

import (
	"context"
	"strings"

	"github.com/synapsenet/miner/chain"
)

// DispatchError is the narrow shape this package needs from a substrate
// module dispatch error: the variant name the runtime attached to it.
type DispatchError interface {
	VariantName() string
}

// AcceptableSet is a map of expected DispatchError variant names that
// denote an idempotent post-success state for one particular call site
// (spec §9: "implementers should colocate the expected variant names with
// the transaction that produces them"). Callers build one of these beside
// each Executor that can legitimately race itself on-chain.
type AcceptableSet map[string]struct{}

// NewAcceptableSet builds an AcceptableSet from variant names.
func NewAcceptableSet(names ...string) AcceptableSet {
	set := make(AcceptableSet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Wrap adapts an Executor so that any error matching an acceptable variant
// name is downgraded to chain.Outcome{Kind: OutcomeSuccess}, preventing a
// retry storm on an already-applied idempotent call (spec §4.2
// "Acceptable-error suppression").
func (set AcceptableSet) Wrap(exec Executor) Executor {
	return func(ctx context.Context) (chain.Outcome, error) {
		outcome, err := exec(ctx)
		if err != nil && Match(err, set) {
			return chain.Outcome{Kind: chain.OutcomeSuccess}, nil
		}
		return outcome, err
	}
}

// Match checks whether err's DispatchError variant name (if it carries
// one) appears in set. Errors that don't carry a variant name never
// match, regardless of their text, keeping suppression scoped to the
// chain-error path the spec describes rather than any string that happens
// to contain the name.
func Match(err error, set AcceptableSet) bool {
	if err == nil {
		return false
	}
	var de DispatchError
	if !asDispatchError(err, &de) {
		return false
	}
	_, ok := set[de.VariantName()]
	return ok
}

func asDispatchError(err error, out *DispatchError) bool {
	for err != nil {
		if de, ok := err.(DispatchError); ok {
			*out = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// VariantNameFromMessage extracts the first "Module(<Variant>)"-shaped
// substring from a plain error string, for chain errors surfaced as
// unstructured text by the RPC client rather than a typed DispatchError.
// Match does not call it; Match only recognizes a typed DispatchError.
func VariantNameFromMessage(msg string) (string, bool) {
	const prefix = "Module("
	i := strings.Index(msg, prefix)
	if i < 0 {
		return "", false
	}
	rest := msg[i+len(prefix):]
	j := strings.IndexByte(rest, ')')
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}
