package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/starford/heirloom/internal/apperr"
)

// RevertKind classifies a contract revert.
type RevertKind string

const (
	RevertAlreadyClaimed        RevertKind = "plan_already_claimed"
	RevertClaimNotAvailable     RevertKind = "claim_not_available"
	RevertInvalidConfiguration  RevertKind = "invalid_configuration"
	RevertNothingToDistribute   RevertKind = "nothing_to_distribute"
	RevertInsufficientAllowance RevertKind = "insufficient_allowance"
	RevertUnauthorized          RevertKind = "unauthorized"
	RevertAlreadyResolved       RevertKind = "inheritor_already_resolved"
	RevertInvalidSecret         RevertKind = "invalid_secret"
	RevertUnknown               RevertKind = "unknown"
)

// customErrorKinds maps contract custom error names to kinds.
var customErrorKinds = map[string]RevertKind{
	"PlanAlreadyClaimed":       RevertAlreadyClaimed,
	"ClaimNotAvailable":        RevertClaimNotAvailable,
	"InvalidConfiguration":     RevertInvalidConfiguration,
	"NothingToDistribute":      RevertNothingToDistribute,
	"InsufficientAllowance":    RevertInsufficientAllowance,
	"Unauthorized":             RevertUnauthorized,
	"InheritorAlreadyResolved": RevertAlreadyResolved,
	"InvalidSecret":            RevertInvalidSecret,
}

// reasonKinds maps substrings of Error(string) reasons to kinds, for
// contracts that revert with require messages.
var reasonKinds = []struct {
	substr string
	kind   RevertKind
}{
	{"already claimed", RevertAlreadyClaimed},
	{"not claimable", RevertClaimNotAvailable},
	{"claim not available", RevertClaimNotAvailable},
	{"invalid config", RevertInvalidConfiguration},
	{"nothing to distribute", RevertNothingToDistribute},
	{"allowance", RevertInsufficientAllowance},
	{"unauthorized", RevertUnauthorized},
	{"not authorized", RevertUnauthorized},
	{"already resolved", RevertAlreadyResolved},
	{"invalid secret", RevertInvalidSecret},
	{"wrong answer", RevertInvalidSecret},
}

// RevertError is a decoded contract revert. It unwraps to apperr.ErrUpstream.
type RevertError struct {
	Kind   RevertKind
	Name   string
	Reason string
	Args   map[string]any
}

func (e *RevertError) Error() string {
	switch {
	case e.Kind == RevertInsufficientAllowance && e.Args != nil:
		return fmt.Sprintf("ledger reverted: %s (token %v, have %v, need %v)",
			e.Name, e.Args["token"], e.Args["have"], e.Args["need"])
	case e.Reason != "":
		return fmt.Sprintf("ledger reverted: %s", e.Reason)
	case e.Name != "":
		return fmt.Sprintf("ledger reverted: %s", e.Name)
	default:
		return "ledger reverted"
	}
}

func (e *RevertError) Unwrap() error { return apperr.ErrUpstream }

// IsRevert reports whether err carries a decoded revert of the given kind.
func IsRevert(err error, kind RevertKind) bool {
	var re *RevertError
	return errors.As(err, &re) && re.Kind == kind
}

// RevertDecoder turns raw revert payloads into RevertErrors using the
// contract ABI's custom error definitions.
type RevertDecoder struct {
	errors map[[4]byte]abi.Error
}

// NewRevertDecoder indexes the custom errors of contract by selector.
func NewRevertDecoder(contract abi.ABI) *RevertDecoder {
	d := &RevertDecoder{errors: make(map[[4]byte]abi.Error, len(contract.Errors))}
	for _, e := range contract.Errors {
		var sel [4]byte
		copy(sel[:], e.ID[:4])
		d.errors[sel] = e
	}
	return d
}

// Decode classifies a revert payload (4-byte selector followed by ABI-encoded args).
func (d *RevertDecoder) Decode(data []byte) *RevertError {
	if len(data) < 4 {
		return &RevertError{Kind: RevertUnknown}
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return &RevertError{Kind: kindForReason(reason), Reason: reason}
	}

	var sel [4]byte
	copy(sel[:], data[:4])
	def, ok := d.errors[sel]
	if !ok {
		return &RevertError{Kind: RevertUnknown, Name: hexutil.Encode(data[:4])}
	}
	out := &RevertError{Kind: RevertUnknown, Name: def.Name}
	if k, ok := customErrorKinds[def.Name]; ok {
		out.Kind = k
	}
	if len(def.Inputs) > 0 && bytes.Equal(data[:4], def.ID[:4]) {
		if vals, err := def.Inputs.Unpack(data[4:]); err == nil {
			out.Args = make(map[string]any, len(vals))
			for i, arg := range def.Inputs {
				out.Args[arg.Name] = formatArg(vals[i])
			}
		}
	}
	return out
}

// DecodeError extracts revert data from an RPC error and decodes it. Errors
// without revert data are wrapped as plain upstream failures.
func (d *RevertDecoder) DecodeError(err error) error {
	if err == nil {
		return nil
	}
	if data, ok := revertData(err); ok {
		return d.Decode(data)
	}
	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len("execution reverted"):], ":"))
		return &RevertError{Kind: kindForReason(reason), Reason: reason}
	}
	return fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
}

func revertData(err error) ([]byte, bool) {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil, false
	}
	switch v := de.ErrorData().(type) {
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return nil, false
		}
		return b, true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}

func kindForReason(reason string) RevertKind {
	lower := strings.ToLower(reason)
	for _, r := range reasonKinds {
		if strings.Contains(lower, r.substr) {
			return r.kind
		}
	}
	return RevertUnknown
}

func formatArg(v any) any {
	switch x := v.(type) {
	case common.Address:
		return strings.ToLower(x.Hex())
	case *big.Int:
		return x.String()
	default:
		return x
	}
}
