// Package ledger implements the domain.Ledger interface against an EVM
// chain: ERC-20 reads, the price oracle, and the lending vault's mutating
// operations, with EIP-155 signed transactions and receipt polling.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/aurumfi/goldvault/internal/crypto"
	"github.com/aurumfi/goldvault/internal/domain"
)

// Config holds chain endpoints and transaction parameters.
type Config struct {
	RPCURL        string
	VaultAddress  string
	OracleAddress string

	// GasLimit for vault writes; 0 selects a safe default.
	GasLimit uint64

	// ConfirmPollInterval is how often WaitConfirmed polls for a receipt.
	ConfirmPollInterval time.Duration
}

// Client is the on-chain ledger backed by an ethclient connection and the
// operator signer. It serializes nonce assignment so concurrent writes from
// the one operator account cannot collide.
type Client struct {
	eth    *ethclient.Client
	signer *crypto.Signer
	vault  common.Address
	oracle common.Address
	cfg    Config
	logger *slog.Logger

	nonceMu sync.Mutex
}

// New dials the RPC endpoint and returns a connected Client.
func New(ctx context.Context, cfg Config, signer *crypto.Signer, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("ledger: chain id: %w", err)
	}
	if chainID.Cmp(signer.ChainID()) != 0 {
		eth.Close()
		return nil, fmt.Errorf("ledger: RPC chain %s does not match signer chain %s", chainID, signer.ChainID())
	}

	return &Client{
		eth:    eth,
		signer: signer,
		vault:  common.HexToAddress(cfg.VaultAddress),
		oracle: common.HexToAddress(cfg.OracleAddress),
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ledger")),
	}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Operator returns the operator wallet address the client signs with.
func (c *Client) Operator() string {
	return c.signer.Address().Hex()
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// BalanceOf returns the wallet's token balance in the asset's scaled units.
func (c *Client) BalanceOf(ctx context.Context, asset, wallet string) (*big.Int, error) {
	data := packCall(selBalanceOf, addrWord(wallet))
	out, err := c.call(ctx, common.HexToAddress(asset), data)
	if err != nil {
		return nil, fmt.Errorf("ledger: balanceOf %s: %w", asset, err)
	}
	return word(out, 0), nil
}

// PriceOf returns the oracle price of asset in loan-asset units at the
// domain.PriceScale fixed point.
func (c *Client) PriceOf(ctx context.Context, asset string) (*big.Int, error) {
	data := packCall(selPriceOf, addrWord(asset))
	out, err := c.call(ctx, c.oracle, data)
	if err != nil {
		return nil, fmt.Errorf("ledger: priceOf %s: %w", asset, err)
	}
	price := word(out, 0)
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("ledger: oracle returned non-positive price for %s", asset)
	}
	return price, nil
}

// AllowanceOf returns the spender's remaining allowance from owner.
func (c *Client) AllowanceOf(ctx context.Context, asset, owner, spender string) (*big.Int, error) {
	data := packCall(selAllowance, addrWord(owner), addrWord(spender))
	out, err := c.call(ctx, common.HexToAddress(asset), data)
	if err != nil {
		return nil, fmt.Errorf("ledger: allowance %s: %w", asset, err)
	}
	return word(out, 0), nil
}

// PositionOf reads the wallet's collateral/debt pair from the vault.
func (c *Client) PositionOf(ctx context.Context, wallet string) (domain.Position, error) {
	data := packCall(selPositions, addrWord(wallet))
	out, err := c.call(ctx, c.vault, data)
	if err != nil {
		return domain.Position{}, fmt.Errorf("ledger: positions %s: %w", wallet, err)
	}
	if len(out) < 64 {
		return domain.Position{}, fmt.Errorf("ledger: short positions response (%d bytes)", len(out))
	}
	return domain.Position{
		Wallet:     wallet,
		Collateral: word(out, 0),
		Debt:       word(out, 1),
	}, nil
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// Approve grants the spender an allowance over asset.
func (c *Client) Approve(ctx context.Context, asset, spender string, amount *big.Int) (string, error) {
	data := packCall(selApprove, addrWord(spender), amountWord(amount))
	return c.send(ctx, common.HexToAddress(asset), data, "approve")
}

// DepositAndBorrow locks collateral and draws the borrow in one vault call.
func (c *Client) DepositAndBorrow(ctx context.Context, collateralAmount, borrowAmount *big.Int) (string, error) {
	data := packCall(selDepositAndBorrow, amountWord(collateralAmount), amountWord(borrowAmount))
	return c.send(ctx, c.vault, data, "depositAndBorrow")
}

// Repay reduces the operator's outstanding debt.
func (c *Client) Repay(ctx context.Context, amount *big.Int) (string, error) {
	data := packCall(selRepay, amountWord(amount))
	return c.send(ctx, c.vault, data, "repay")
}

// RepayAndWithdraw repays debt and releases part of the collateral.
func (c *Client) RepayAndWithdraw(ctx context.Context, repayAmount, withdrawAmount *big.Int) (string, error) {
	data := packCall(selRepayAndWithdraw, amountWord(repayAmount), amountWord(withdrawAmount))
	return c.send(ctx, c.vault, data, "repayAndWithdraw")
}

// ClosePosition repays all debt and releases all collateral.
func (c *Client) ClosePosition(ctx context.Context) (string, error) {
	return c.send(ctx, c.vault, packCall(selClosePosition), "closePosition")
}

// WaitConfirmed polls for the transaction receipt until it is mined or the
// context ends. A status-0 receipt returns domain.ErrTxFailed.
func (c *Client) WaitConfirmed(ctx context.Context, txHash string) error {
	interval := c.cfg.ConfirmPollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return fmt.Errorf("%w: %s", domain.ErrTxFailed, txHash)
			}
			return nil
		}
		if err != ethereum.NotFound {
			return fmt.Errorf("ledger: receipt %s: %w", txHash, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// send assembles, signs, and broadcasts a transaction, returning its hash.
// Nonce assignment is serialized across the client.
func (c *Client) send(ctx context.Context, to common.Address, data []byte, label string) (string, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	from := c.signer.Address()

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("ledger: %s: nonce: %w", label, err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("ledger: %s: gas price: %w", label, err)
	}

	gasLimit := c.cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 400_000
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return "", fmt.Errorf("ledger: %s: %w", label, err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("ledger: %s: send: %w", label, err)
	}

	hash := signed.Hash().Hex()
	c.logger.InfoContext(ctx, "transaction sent",
		slog.String("op", label),
		slog.String("tx_hash", hash),
		slog.Uint64("nonce", nonce),
	)
	return hash, nil
}

// Compile-time interface check.
var _ domain.Ledger = (*Client)(nil)
