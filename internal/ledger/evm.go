package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/starford/heirloom/internal/apperr"
)

const defaultTxTimeout = 2 * time.Minute

// Config holds the relayer connection settings. Every field is optional;
// without an endpoint, contract and key the gateway stays disabled.
type Config struct {
	RPCURL          string
	ContractAddress string
	SignerKey       string
	SignerKeyFile   string
	ChainID         int64
	TxTimeout       time.Duration
}

// Complete reports whether enough is configured to sign transactions.
func (c Config) Complete() bool {
	return c.RPCURL != "" && c.ContractAddress != "" && (c.SignerKey != "" || c.SignerKeyFile != "")
}

// EVMGateway talks to the inheritance contract over JSON-RPC. The client and
// relayer key are loaded on first use and dropped by Reset.
type EVMGateway struct {
	cfg     Config
	logger  *slog.Logger
	abi     abi.ABI
	decoder *RevertDecoder
	lane    *Lane

	mu       sync.Mutex
	client   *ethclient.Client
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
}

// NewEVMGateway builds a gateway. It never dials; an incomplete cfg yields a
// gateway whose Enabled reports false.
func NewEVMGateway(cfg Config, logger *slog.Logger) (*EVMGateway, error) {
	parsed, err := ContractABI()
	if err != nil {
		return nil, fmt.Errorf("ledger: parse abi: %w", err)
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = defaultTxTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EVMGateway{
		cfg:     cfg,
		logger:  logger,
		abi:     parsed,
		decoder: NewRevertDecoder(parsed),
		lane:    NewLane(64),
	}, nil
}

var _ Gateway = (*EVMGateway)(nil)

// Enabled implements Gateway.
func (g *EVMGateway) Enabled() bool {
	return g.cfg.Complete()
}

// Reset drops the connection and key so the next call reloads both. It runs
// as a lane job, after any transaction already queued has finished with the
// old client.
func (g *EVMGateway) Reset() {
	err := g.lane.Do(context.Background(), func(context.Context) error {
		g.drop()
		return nil
	})
	if errors.Is(err, ErrLaneClosed) {
		g.drop()
	}
	g.logger.Info("ledger: gateway reset")
}

// Close stops the transaction lane and closes the client.
func (g *EVMGateway) Close() {
	g.lane.Close()
	g.drop()
}

func (g *EVMGateway) drop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		g.client.Close()
	}
	g.client, g.contract, g.key, g.chainID = nil, nil, nil, nil
}

// SubmitClaim implements Gateway.
func (g *EVMGateway) SubmitClaim(ctx context.Context, owner string) (*Receipt, error) {
	return g.transact(ctx, methodClaimInheritance, common.HexToAddress(owner))
}

// ResolveInheritor implements Gateway.
func (g *EVMGateway) ResolveInheritor(ctx context.Context, owner string, index int, beneficiary, answer string) (*Receipt, error) {
	return g.transact(ctx, methodResolveWithSecret,
		common.HexToAddress(owner), big.NewInt(int64(index)), common.HexToAddress(beneficiary), answer)
}

// GetClaimStatus implements Gateway.
func (g *EVMGateway) GetClaimStatus(ctx context.Context, owner string) (*ClaimStatus, error) {
	if !g.Enabled() {
		return nil, apperr.ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.TxTimeout)
	defer cancel()
	if err := g.connect(ctx); err != nil {
		return nil, upstreamContext(err)
	}
	contract := g.boundContract()

	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, methodGetClaimStatus, common.HexToAddress(owner)); err != nil {
		return nil, g.decoder.DecodeError(err)
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("%w: getClaimStatus returned %d values", apperr.ErrUpstream, len(out))
	}
	claimable, _ := out[0].(bool)
	st := &ClaimStatus{Claimable: claimable}
	if deadline, ok := out[1].(*big.Int); ok && deadline.Sign() > 0 {
		st.NextDeadline = time.Unix(deadline.Int64(), 0).UTC()
	}
	return st, nil
}

// transact simulates the call to surface typed reverts, then signs and sends
// it on the lane and waits for the receipt within the configured timeout.
func (g *EVMGateway) transact(ctx context.Context, method string, args ...any) (*Receipt, error) {
	if !g.Enabled() {
		return nil, apperr.ErrDisabled
	}
	input, err := g.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %v", apperr.ErrBadRequest, method, err)
	}

	var receipt *Receipt
	err = g.lane.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.cfg.TxTimeout)
		defer cancel()

		if err := g.connect(ctx); err != nil {
			return err
		}
		g.mu.Lock()
		client, contract, key, from, chainID := g.client, g.contract, g.key, g.from, g.chainID
		g.mu.Unlock()

		to := common.HexToAddress(g.cfg.ContractAddress)
		if _, err := client.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: input}, nil); err != nil {
			return g.decoder.DecodeError(err)
		}

		opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return fmt.Errorf("ledger: transactor: %w", err)
		}
		opts.Context = ctx
		tx, err := contract.RawTransact(opts, input)
		if err != nil {
			return g.decoder.DecodeError(err)
		}
		g.logger.Info("ledger: transaction sent",
			slog.String("method", method), slog.String("tx_hash", tx.Hash().Hex()))

		mined, err := bind.WaitMined(ctx, client, tx)
		if err != nil {
			return fmt.Errorf("%w: wait for %s: %v", apperr.ErrUpstream, tx.Hash().Hex(), err)
		}
		if mined.Status != types.ReceiptStatusSuccessful {
			return &RevertError{Kind: RevertUnknown, Reason: "transaction reverted " + tx.Hash().Hex()}
		}
		receipt = &Receipt{
			From:        strings.ToLower(from.Hex()),
			TxHash:      mined.TxHash.Hex(),
			BlockNumber: mined.BlockNumber.Uint64(),
			GasUsed:     mined.GasUsed,
		}
		return nil
	})
	if err != nil {
		return nil, upstreamContext(err)
	}
	return receipt, nil
}

// upstreamContext reports a cancelled or expired ledger call as an upstream
// failure. Errors that already carry a kind pass through.
func upstreamContext(err error) error {
	if errors.Is(err, apperr.ErrUpstream) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	return err
}

func (g *EVMGateway) boundContract() *bind.BoundContract {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.contract
}

func (g *EVMGateway) connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return nil
	}

	keyHex, err := g.signerKey()
	if err != nil {
		return err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
	if err != nil {
		return fmt.Errorf("ledger: parse signer key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, g.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", apperr.ErrUpstream, g.cfg.RPCURL, err)
	}
	chainID := big.NewInt(g.cfg.ChainID)
	if g.cfg.ChainID == 0 {
		if chainID, err = client.ChainID(ctx); err != nil {
			client.Close()
			return fmt.Errorf("%w: chain id: %v", apperr.ErrUpstream, err)
		}
	}

	g.client = client
	g.key = key
	g.from = crypto.PubkeyToAddress(key.PublicKey)
	g.chainID = chainID
	g.contract = bind.NewBoundContract(common.HexToAddress(g.cfg.ContractAddress), g.abi, client, client, client)
	g.logger.Info("ledger: gateway connected",
		slog.String("relayer", strings.ToLower(g.from.Hex())),
		slog.String("chain_id", chainID.String()))
	return nil
}

func (g *EVMGateway) signerKey() (string, error) {
	if g.cfg.SignerKeyFile != "" {
		data, err := os.ReadFile(g.cfg.SignerKeyFile)
		if err != nil {
			return "", fmt.Errorf("ledger: read signer key file: %w", err)
		}
		return string(data), nil
	}
	return g.cfg.SignerKey, nil
}
