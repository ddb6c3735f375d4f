package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/heirloom/internal/apperr"
)

type dataErr struct{ data any }

func (e dataErr) Error() string  { return "execution reverted" }
func (e dataErr) ErrorData() any { return e.data }

func testDecoder(t *testing.T) (*RevertDecoder, abi.ABI) {
	t.Helper()
	parsed, err := ContractABI()
	require.NoError(t, err)
	return NewRevertDecoder(parsed), parsed
}

func customErrorData(t *testing.T, parsed abi.ABI, name string, args ...any) []byte {
	t.Helper()
	def, ok := parsed.Errors[name]
	require.True(t, ok, "error %s not in abi", name)
	packed, err := def.Inputs.Pack(args...)
	require.NoError(t, err)
	return append(append([]byte{}, def.ID[:4]...), packed...)
}

func reasonData(t *testing.T, reason string) []byte {
	t.Helper()
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	require.NoError(t, err)
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
}

func TestDecode_CustomErrors(t *testing.T) {
	d, parsed := testDecoder(t)
	for name, kind := range customErrorKinds {
		if name == "InsufficientAllowance" {
			continue
		}
		got := d.Decode(customErrorData(t, parsed, name))
		assert.Equal(t, kind, got.Kind, name)
		assert.Equal(t, name, got.Name)
	}
}

func TestDecode_InsufficientAllowanceArgs(t *testing.T) {
	d, parsed := testDecoder(t)
	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data := customErrorData(t, parsed, "InsufficientAllowance", token, big.NewInt(5), big.NewInt(10))

	got := d.Decode(data)
	require.Equal(t, RevertInsufficientAllowance, got.Kind)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", got.Args["token"])
	assert.Equal(t, "5", got.Args["have"])
	assert.Equal(t, "10", got.Args["need"])
	assert.Contains(t, got.Error(), "need 10")
}

func TestDecode_ReasonString(t *testing.T) {
	d, _ := testDecoder(t)
	got := d.Decode(reasonData(t, "Plan already claimed"))
	assert.Equal(t, RevertAlreadyClaimed, got.Kind)
	assert.Equal(t, "Plan already claimed", got.Reason)

	got = d.Decode(reasonData(t, "something else"))
	assert.Equal(t, RevertUnknown, got.Kind)
}

func TestDecode_UnknownSelector(t *testing.T) {
	d, _ := testDecoder(t)
	got := d.Decode([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.Equal(t, RevertUnknown, got.Kind)
	assert.Equal(t, "0xdeadbeef", got.Name)

	assert.Equal(t, RevertUnknown, d.Decode(nil).Kind)
}

func TestDecodeError_FromRPCDataError(t *testing.T) {
	d, parsed := testDecoder(t)
	data := customErrorData(t, parsed, "ClaimNotAvailable")

	err := d.DecodeError(fmt.Errorf("call: %w", dataErr{data: hexutil.Encode(data)}))
	assert.True(t, IsRevert(err, RevertClaimNotAvailable))
	assert.True(t, errors.Is(err, apperr.ErrUpstream))

	err = d.DecodeError(dataErr{data: data})
	assert.True(t, IsRevert(err, RevertClaimNotAvailable))
}

func TestDecodeError_MessageFallback(t *testing.T) {
	d, _ := testDecoder(t)
	err := d.DecodeError(errors.New("failed to estimate gas needed: execution reverted: already claimed"))
	assert.True(t, IsRevert(err, RevertAlreadyClaimed))

	err = d.DecodeError(errors.New("connection refused"))
	assert.True(t, errors.Is(err, apperr.ErrUpstream))
	var re *RevertError
	assert.False(t, errors.As(err, &re))

	assert.NoError(t, d.DecodeError(nil))
}
