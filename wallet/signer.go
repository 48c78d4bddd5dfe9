package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/swaps"
)

// ERC20 ABI for the approve function.
const erc20ApproveABI = `[{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}]`

const (
	approveGasLimit = 100_000
	defaultGasLimit = 350_000
)

var approveABI abi.ABI

func init() {
	var err error
	approveABI, err = abi.JSON(strings.NewReader(erc20ApproveABI))
	if err != nil {
		panic(err)
	}
}

// Signer is a local wallet.Adapter: a mnemonic-derived key plus one RPC client
// per configured chain. "Switching chains" re-targets which client transactions
// go to, mirroring what a browser wallet does when the user approves a network
// switch.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	rpc     map[chains.ID]*ethclient.Client

	mu     sync.Mutex
	active chains.ID
}

// NewSigner derives the key at the given account index and starts on the
// initial chain. The initial chain must have a configured RPC endpoint.
func NewSigner(mnemonic string, index uint32, rpc map[chains.ID]*ethclient.Client, initial chains.ID) (*Signer, error) {
	key, err := DeriveKey(mnemonic, index)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	if _, ok := rpc[initial]; !ok {
		return nil, fmt.Errorf("no RPC endpoint for initial chain %d", initial)
	}

	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		rpc:     rpc,
		active:  initial,
	}, nil
}

func (s *Signer) IsConnected() bool {
	return s.key != nil
}

func (s *Signer) Address() (common.Address, bool) {
	if s.key == nil {
		return common.Address{}, false
	}
	return s.address, true
}

// ChainID asks the active RPC node for its chain ID rather than trusting local
// state. The node is the source of truth for which network we'd actually
// submit to.
func (s *Signer) ChainID(ctx context.Context) (chains.ID, error) {
	client, _ := s.activeClient()
	id, err := client.ChainID(ctx)
	if err != nil {
		return 0, Classify(fmt.Errorf("reading chain id: %w", err))
	}
	return chains.ID(id.Int64()), nil
}

func (s *Signer) SwitchChain(ctx context.Context, target chains.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rpc[target]; !ok {
		return &Error{Kind: KindWrongNetwork, Err: fmt.Errorf("no RPC endpoint for chain %d (%s)", target, chains.Name(target))}
	}
	s.active = target
	log.Printf("wallet: switched to %s", chains.Name(target))
	return nil
}

func (s *Signer) SendApproval(ctx context.Context, token, spender common.Address, amt *big.Int) (common.Hash, error) {
	client, chainID := s.activeClient()

	data, err := approveABI.Pack("approve", spender, amt)
	if err != nil {
		return common.Hash{}, Classify(fmt.Errorf("packing approve: %w", err))
	}

	signedTx, err := s.signAndSend(ctx, client, chainID, token, big.NewInt(0), approveGasLimit, nil, data)
	if err != nil {
		return common.Hash{}, err
	}

	log.Printf("wallet: approve tx sent: %s", signedTx.Hash().Hex())

	// Approvals must be mined before the swap can spend the allowance.
	receipt, err := bind.WaitMined(ctx, client, signedTx)
	if err != nil {
		return common.Hash{}, Classify(fmt.Errorf("waiting for approve: %w", err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, &Error{Kind: KindUnknown, Err: fmt.Errorf("approve tx %s reverted", signedTx.Hash().Hex())}
	}

	return signedTx.Hash(), nil
}

func (s *Signer) SendTransaction(ctx context.Context, tx *swaps.PreparedTx) (common.Hash, error) {
	client, chainID := s.activeClient()

	data, err := hexutil.Decode(tx.Data)
	if err != nil {
		return common.Hash{}, Classify(fmt.Errorf("decoding calldata: %w", err))
	}

	value := big.NewInt(0)
	if tx.Value != "" {
		v, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok {
			return common.Hash{}, Classify(fmt.Errorf("malformed tx value %q", tx.Value))
		}
		value = v
	}

	gasLimit := uint64(defaultGasLimit)
	if tx.Gas > 0 {
		gasLimit = uint64(tx.Gas)
	}

	var gasPrice *big.Int
	if tx.GasPrice != "" {
		gp, ok := new(big.Int).SetString(tx.GasPrice, 10)
		if !ok {
			return common.Hash{}, Classify(fmt.Errorf("malformed gas price %q", tx.GasPrice))
		}
		gasPrice = gp
	}

	signedTx, err := s.signAndSend(ctx, client, chainID, common.HexToAddress(tx.To), value, gasLimit, gasPrice, data)
	if err != nil {
		return common.Hash{}, err
	}

	log.Printf("wallet: swap tx sent: %s", signedTx.Hash().Hex())
	return signedTx.Hash(), nil
}

func (s *Signer) signAndSend(ctx context.Context, client *ethclient.Client, chainID chains.ID, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) (*types.Transaction, error) {
	nonce, err := client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, Classify(fmt.Errorf("getting nonce: %w", err))
	}

	if gasPrice == nil {
		gasPrice, err = client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, Classify(fmt.Errorf("getting gas price: %w", err))
		}
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(int64(chainID))), s.key)
	if err != nil {
		return nil, Classify(fmt.Errorf("signing tx: %w", err))
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return nil, Classify(fmt.Errorf("sending tx: %w", err))
	}

	return signedTx, nil
}

func (s *Signer) activeClient() (*ethclient.Client, chains.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rpc[s.active], s.active
}
