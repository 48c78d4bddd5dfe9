// Package balances reads ERC20 balances and allowances over RPC.
package balances

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`))
	if err != nil {
		panic(err)
	}
}

// TokenBalance returns the ERC20 balance (smallest unit) of addr.
func TokenBalance(ctx context.Context, rpc *ethclient.Client, token, addr common.Address) (*big.Int, error) {
	return callUint256(ctx, rpc, token, "balanceOf", addr)
}

// NativeBalance returns the native-asset balance (wei) of addr.
func NativeBalance(ctx context.Context, rpc *ethclient.Client, addr common.Address) (*big.Int, error) {
	bal, err := rpc.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("native balance of %s: %w", addr.Hex(), err)
	}
	return bal, nil
}

// Allowance returns how much of owner's token the spender may currently move.
// The engine uses this to skip approvals that are already in place.
func Allowance(ctx context.Context, rpc *ethclient.Client, token, owner, spender common.Address) (*big.Int, error) {
	return callUint256(ctx, rpc, token, "allowance", owner, spender)
}

func callUint256(ctx context.Context, rpc *ethclient.Client, contract common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}

	output, err := rpc.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s on %s: %w", method, contract.Hex(), err)
	}

	results, err := erc20ABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", method, err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%s: unexpected result count %d", method, len(results))
	}

	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, results[0])
	}
	return value, nil
}
