package stewardd

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"cronosquity/native/steward"
)

const registryABIJSON = `[
    {"name":"nextProgramId","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
    {"name":"getProgram","type":"function","stateMutability":"view","inputs":[{"type":"uint256"}],"outputs":[{"type":"tuple","components":[
        {"name":"id","type":"uint256"},
        {"name":"owner","type":"address"},
        {"name":"programType","type":"uint8"},
        {"name":"token","type":"address"},
        {"name":"metadataURI","type":"string"},
        {"name":"policyURI","type":"string"},
        {"name":"budget","type":"uint256"},
        {"name":"status","type":"uint8"}
    ]}]}
]`

// ContractCaller is the subset of the Ethereum RPC the registry reader uses.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// DialEVMClient initialises an EVM RPC client for the provided endpoint.
func DialEVMClient(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// RegistryReader loads programs from the on-chain registry. The registry is
// read-only to the steward; program lifecycle belongs to its owner.
type RegistryReader struct {
	client  ContractCaller
	address common.Address
	abi     abi.ABI
}

// NewRegistryReader constructs a reader bound to the registry contract.
func NewRegistryReader(client ContractCaller, address string) (*RegistryReader, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid registry address %q", address)
	}
	parsed, err := abi.JSON(strings.NewReader(registryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	return &RegistryReader{client: client, address: common.HexToAddress(address), abi: parsed}, nil
}

type programTuple struct {
	Id          *big.Int
	Owner       common.Address
	ProgramType uint8
	Token       common.Address
	MetadataURI string
	PolicyURI   string
	Budget      *big.Int
	Status      uint8
}

// ActivePrograms scans program ids [0, nextProgramId) and returns those whose
// status is Active.
func (r *RegistryReader) ActivePrograms(ctx context.Context) ([]steward.Program, error) {
	count, err := r.nextProgramID(ctx)
	if err != nil {
		return nil, fmt.Errorf("next program id: %w", err)
	}
	var programs []steward.Program
	for id := uint64(0); id < count; id++ {
		program, err := r.program(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get program %d: %w", id, err)
		}
		if program.Status != steward.ProgramStatusActive {
			continue
		}
		programs = append(programs, program)
	}
	return programs, nil
}

func (r *RegistryReader) nextProgramID(ctx context.Context) (uint64, error) {
	data, err := r.abi.Pack("nextProgramId")
	if err != nil {
		return 0, err
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return 0, err
	}
	values, err := r.abi.Unpack("nextProgramId", raw)
	if err != nil {
		return 0, err
	}
	count, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected nextProgramId type %T", values[0])
	}
	return count.Uint64(), nil
}

func (r *RegistryReader) program(ctx context.Context, id uint64) (steward.Program, error) {
	data, err := r.abi.Pack("getProgram", new(big.Int).SetUint64(id))
	if err != nil {
		return steward.Program{}, err
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return steward.Program{}, err
	}
	values, err := r.abi.Unpack("getProgram", raw)
	if err != nil {
		return steward.Program{}, err
	}
	tuple := abi.ConvertType(values[0], new(programTuple)).(*programTuple)
	return steward.Program{
		ID:          tuple.Id.Uint64(),
		Owner:       tuple.Owner.Hex(),
		Type:        steward.ProgramType(tuple.ProgramType),
		Token:       tuple.Token.Hex(),
		MetadataURI: tuple.MetadataURI,
		PolicyURI:   tuple.PolicyURI,
		Budget:      tuple.Budget,
		Status:      steward.ProgramStatus(tuple.Status),
	}, nil
}
