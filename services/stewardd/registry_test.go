package stewardd

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cronosquity/native/steward"
)

// fakeRegistryCaller answers registry calls from an in-memory program table,
// packing responses with the same ABI the reader decodes with.
type fakeRegistryCaller struct {
	t        *testing.T
	abi      abi.ABI
	programs []programTuple
	err      error
}

func newFakeRegistryCaller(t *testing.T, programs []programTuple) *fakeRegistryCaller {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(registryABIJSON))
	require.NoError(t, err)
	return &fakeRegistryCaller{t: t, abi: parsed, programs: programs}
}

func (f *fakeRegistryCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	next := f.abi.Methods["nextProgramId"]
	get := f.abi.Methods["getProgram"]
	switch {
	case bytes.Equal(call.Data[:4], next.ID):
		return next.Outputs.Pack(big.NewInt(int64(len(f.programs))))
	case bytes.Equal(call.Data[:4], get.ID):
		args, err := get.Inputs.Unpack(call.Data[4:])
		require.NoError(f.t, err)
		id := args[0].(*big.Int).Uint64()
		require.Less(f.t, id, uint64(len(f.programs)))
		return get.Outputs.Pack(f.programs[id])
	default:
		return nil, errors.New("unexpected call")
	}
}

func testTuple(id int64, status uint8, budget string) programTuple {
	amount, _ := new(big.Int).SetString(budget, 10)
	return programTuple{
		Id:          big.NewInt(id),
		Owner:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
		ProgramType: uint8(steward.ProgramTypeBounty),
		Token:       common.HexToAddress("0x2222222222222222222222222222222222222222"),
		MetadataURI: "ipfs://meta",
		PolicyURI:   policyDocument(),
		Budget:      amount,
		Status:      status,
	}
}

func TestRegistryReaderActivePrograms(t *testing.T) {
	caller := newFakeRegistryCaller(t, []programTuple{
		testTuple(0, uint8(steward.ProgramStatusActive), "1000000000000000000000"),
		testTuple(1, uint8(steward.ProgramStatusClosed), "5000000000000000000"),
		testTuple(2, uint8(steward.ProgramStatusActive), "250000000000000000000"),
	})
	reader, err := NewRegistryReader(caller, "0x3333333333333333333333333333333333333333")
	require.NoError(t, err)

	programs, err := reader.ActivePrograms(context.Background())
	require.NoError(t, err)
	require.Len(t, programs, 2, "closed programs are filtered out")
	require.Equal(t, uint64(0), programs[0].ID)
	require.Equal(t, uint64(2), programs[1].ID)
	require.Equal(t, steward.ProgramTypeBounty, programs[0].Type)
	require.Equal(t, "1000", steward.FormatUnits(programs[0].Budget))
	require.Equal(t, policyDocument(), programs[0].PolicyURI)
}

func TestRegistryReaderEmptyRegistry(t *testing.T) {
	reader, err := NewRegistryReader(newFakeRegistryCaller(t, nil), "0x3333333333333333333333333333333333333333")
	require.NoError(t, err)
	programs, err := reader.ActivePrograms(context.Background())
	require.NoError(t, err)
	require.Empty(t, programs)
}

func TestRegistryReaderPropagatesRPCError(t *testing.T) {
	caller := newFakeRegistryCaller(t, nil)
	caller.err = errors.New("connection refused")
	reader, err := NewRegistryReader(caller, "0x3333333333333333333333333333333333333333")
	require.NoError(t, err)
	_, err = reader.ActivePrograms(context.Background())
	require.ErrorContains(t, err, "connection refused")
}

func TestNewRegistryReaderRejectsBadAddress(t *testing.T) {
	_, err := NewRegistryReader(newFakeRegistryCaller(t, nil), "not-an-address")
	require.Error(t, err)
}
