package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/laksac24/VeriFy/internal/fingerprint"
	"github.com/laksac24/VeriFy/internal/platform/config"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

// registryABI is the on-chain registry surface: issuer allow-listing, batch
// anchoring, and public lookup.
const registryABI = `[
  {"type":"function","name":"addUniversity","stateMutability":"nonpayable","inputs":[{"name":"issuer","type":"address"}],"outputs":[]},
  {"type":"function","name":"removeUniversity","stateMutability":"nonpayable","inputs":[{"name":"issuer","type":"address"}],"outputs":[]},
  {"type":"function","name":"issueCertificates","stateMutability":"nonpayable","inputs":[{"name":"certHashes","type":"bytes32[]"},{"name":"urls","type":"string[]"}],"outputs":[]},
  {"type":"function","name":"verifyDocument","stateMutability":"view","inputs":[{"name":"certHash","type":"bytes32"}],"outputs":[{"name":"valid","type":"bool"},{"name":"issuer","type":"address"},{"name":"url","type":"string"}]}
]`

// EthereumGateway talks to the registry contract over JSON-RPC. Submissions
// are retried with bounded backoff on transport failures; confirmation waits
// are bounded by ConfirmTimeout and surface CodeConfirmationTimeout when the
// deadline passes with the transaction still in flight.
type EthereumGateway struct {
	client         *ethclient.Client
	contract       *bind.BoundContract
	signer         *bind.TransactOpts
	logger         *slog.Logger
	confirmTimeout time.Duration
	maxRetries     int
}

// NewEthereum dials the RPC endpoint and binds the registry contract.
func NewEthereum(ctx context.Context, cfg config.LedgerConfig, confirmTimeout time.Duration, maxRetries int, logger *slog.Logger) (*EthereumGateway, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	signer, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("build transactor: %w", err)
	}

	contract := bind.NewBoundContract(common.HexToAddress(cfg.ContractAddress), parsed, client, client, client)

	return &EthereumGateway{
		client:         client,
		contract:       contract,
		signer:         signer,
		logger:         logger,
		confirmTimeout: confirmTimeout,
		maxRetries:     maxRetries,
	}, nil
}

func (g *EthereumGateway) WhitelistIssuer(ctx context.Context, identity string) error {
	if !common.IsHexAddress(identity) {
		return dErrors.New(dErrors.CodeValidation, "issuer identity is not a valid address")
	}
	return g.transactAndConfirm(ctx, "addUniversity", common.HexToAddress(identity))
}

func (g *EthereumGateway) RevokeIssuer(ctx context.Context, identity string) error {
	if !common.IsHexAddress(identity) {
		return dErrors.New(dErrors.CodeValidation, "issuer identity is not a valid address")
	}
	return g.transactAndConfirm(ctx, "removeUniversity", common.HexToAddress(identity))
}

func (g *EthereumGateway) AnchorBatch(ctx context.Context, fingerprints []fingerprint.Fingerprint, pointers []string) error {
	if len(fingerprints) == 0 {
		return dErrors.New(dErrors.CodeValidation, "anchor batch is empty")
	}
	if len(fingerprints) != len(pointers) {
		return dErrors.New(dErrors.CodeValidation, "fingerprints and pointers must correspond 1:1")
	}

	// Fail closed on duplicates: an already-anchored fingerprint must be
	// rejected, never overwritten.
	for _, fp := range fingerprints {
		anchor, err := g.Lookup(ctx, fp)
		if err != nil {
			return err
		}
		if anchor.Valid {
			return dErrors.Newf(dErrors.CodeConflict, "fingerprint %s is already anchored", fp)
		}
	}

	hashes := make([][32]byte, len(fingerprints))
	for i, fp := range fingerprints {
		hashes[i] = fp
	}
	return g.transactAndConfirm(ctx, "issueCertificates", hashes, pointers)
}

func (g *EthereumGateway) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (Anchor, error) {
	var out []any
	err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, "verifyDocument", [32]byte(fp))
	if err != nil {
		return Anchor{}, dErrors.Wrap(err, dErrors.CodeExternal, "ledger lookup failed")
	}
	if len(out) != 3 {
		return Anchor{}, dErrors.New(dErrors.CodeExternal, "unexpected lookup result shape")
	}
	valid, _ := out[0].(bool)
	issuer, _ := out[1].(common.Address)
	pointer, _ := out[2].(string)
	return Anchor{
		Valid:   valid,
		Issuer:  strings.ToLower(issuer.Hex()),
		Pointer: pointer,
	}, nil
}

// transactAndConfirm submits a state-changing call and waits for the receipt.
// Submission transport failures are retried; a confirmation deadline is a
// distinct outcome because the transaction may still land.
func (g *EthereumGateway) transactAndConfirm(ctx context.Context, method string, args ...any) error {
	var tx *types.Transaction
	submit := func() error {
		var err error
		tx, err = g.contract.Transact(g.signer, method, args...)
		if err != nil {
			if isRevert(err) {
				err = dErrors.Wrap(err, dErrors.CodeLedgerRejected, "ledger rejected "+method)
			} else {
				err = dErrors.Wrap(err, dErrors.CodeExternal, "submit "+method)
			}
			if !dErrors.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(g.maxRetries)), ctx)
	if err := backoff.Retry(submit, bo); err != nil {
		return err
	}

	g.logger.InfoContext(ctx, "ledger transaction submitted",
		"method", method,
		"tx", tx.Hash().Hex())

	confirmCtx, cancel := context.WithTimeout(ctx, g.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(confirmCtx, g.client, tx)
	if err != nil {
		if errors.Is(confirmCtx.Err(), context.DeadlineExceeded) {
			return dErrors.Newf(dErrors.CodeConfirmationTimeout,
				"transaction %s not confirmed within %s", tx.Hash().Hex(), g.confirmTimeout)
		}
		return dErrors.Wrap(err, dErrors.CodeExternal, "wait for confirmation of "+method)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return dErrors.Newf(dErrors.CodeLedgerRejected, "transaction %s reverted on-chain", tx.Hash().Hex())
	}
	return nil
}

func isRevert(err error) bool {
	return err != nil && strings.Contains(err.Error(), "execution reverted")
}

// Close releases the underlying RPC connection.
func (g *EthereumGateway) Close() {
	g.client.Close()
}
