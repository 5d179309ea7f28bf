// Package chain publishes aggregated prices to an EVM oracle contract.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"sort"
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
	"github.com/shopspring/decimal"

	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
	"github.com/JirA44/obelisk-dex-sub013/pkg/metrics"
)

// Oracle contract ABI (batch and single price setters).
const oracleABIJSON = `[
	{
		"inputs": [
			{"internalType": "address[]", "name": "tokens", "type": "address[]"},
			{"internalType": "uint256[]", "name": "prices", "type": "uint256[]"},
			{"internalType": "uint256[]", "name": "timestampsMs", "type": "uint256[]"},
			{"internalType": "uint8[]", "name": "confidences", "type": "uint8[]"},
			{"internalType": "uint8[]", "name": "sourceCounts", "type": "uint8[]"}
		],
		"name": "updatePrices",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "token", "type": "address"},
			{"internalType": "uint256", "name": "price", "type": "uint256"},
			{"internalType": "uint256", "name": "timestampMs", "type": "uint256"},
			{"internalType": "uint8", "name": "confidence", "type": "uint8"},
			{"internalType": "uint8", "name": "sourceCount", "type": "uint8"}
		],
		"name": "updatePrice",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// BatchStatus describes the lifecycle of the most recent submission.
type BatchStatus string

const (
	StatusIdle       BatchStatus = "idle"
	StatusSubmitting BatchStatus = "submitting"
	StatusPending    BatchStatus = "pending"
	StatusConfirmed  BatchStatus = "confirmed"
	StatusFailed     BatchStatus = "failed"
)

// weiDecimals is the fixed-point scale used by the oracle contract.
const weiDecimals = 18

// Config holds the publisher configuration.
type Config struct {
	RPCURL          string
	ChainID         int64
	OracleAddress   string
	PrivateKeyEnv   string            // env var holding the hex private key
	PublishInterval time.Duration     // default 5s
	TxTimeout       time.Duration     // per-transaction confirmation timeout
	Tokens          map[string]string // asset -> token contract address
}

// Publisher pushes the latest aggregated prices to the oracle contract on a
// fixed interval. Assets whose price has not changed since the last
// confirmed batch are skipped; a failed batch is retried on the next tick
// with whatever prices are current then, never replayed.
type Publisher struct {
	cfg    Config
	client *ethclient.Client
	oracle abi.ABI
	key    *ecdsa.PrivateKey
	from   common.Address
	to     common.Address
	logger *logging.Logger

	latest interface {
		All() map[string]feed.AggregatedPrice
	}

	mu            sync.Mutex
	lastPublished map[string]string // asset -> price string of last confirmed batch
	status        BatchStatus
	lastTxHash    string
}

// BatchEntry is one asset's row in an updatePrices call.
type BatchEntry struct {
	Asset       string
	Token       common.Address
	PriceWei    *big.Int
	TimestampMs *big.Int
	Confidence  uint8
	SourceCount uint8
}

// New creates a publisher. The signing key is read from the configured
// environment variable, never from the config file.
func New(cfg Config, latest interface {
	All() map[string]feed.AggregatedPrice
}, logger *logging.Logger) (*Publisher, error) {
	if cfg.RPCURL == "" || cfg.OracleAddress == "" || len(cfg.Tokens) == 0 {
		return nil, ErrIncompleteConfig
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 5 * time.Second
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	keyHex := strings.TrimPrefix(os.Getenv(cfg.PrivateKeyEnv), "0x")
	if keyHex == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrNoSigningKey, cfg.PrivateKeyEnv)
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	oracle, err := abi.JSON(strings.NewReader(oracleABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse oracle ABI: %w", err)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	return &Publisher{
		cfg:           cfg,
		client:        client,
		oracle:        oracle,
		key:           key,
		from:          crypto.PubkeyToAddress(key.PublicKey),
		to:            common.HexToAddress(cfg.OracleAddress),
		logger:        logger,
		latest:        latest,
		lastPublished: make(map[string]string),
		status:        StatusIdle,
	}, nil
}

// Run publishes on the configured interval until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("Starting on-chain publisher",
		"oracle", p.to.Hex(), "from", p.from.Hex(), "interval", p.cfg.PublishInterval)

	ticker := time.NewTicker(p.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.client.Close()
			return
		case <-ticker.C:
			if err := p.publishOnce(ctx); err != nil {
				p.logger.Error("On-chain publish failed", "error", err)
			}
		}
	}
}

// Status returns the state and transaction hash of the latest batch.
func (p *Publisher) Status() (BatchStatus, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.lastTxHash
}

func (p *Publisher) setStatus(status BatchStatus, txHash string) {
	p.mu.Lock()
	p.status = status
	if txHash != "" {
		p.lastTxHash = txHash
	}
	p.mu.Unlock()
}

// publishOnce builds a batch from the latest prices and submits it. An
// empty batch (nothing changed) is a no-op.
func (p *Publisher) publishOnce(ctx context.Context) error {
	p.mu.Lock()
	last := make(map[string]string, len(p.lastPublished))
	for asset, price := range p.lastPublished {
		last[asset] = price
	}
	p.mu.Unlock()

	batch := BuildBatch(p.latest.All(), p.cfg.Tokens, last)
	if len(batch) == 0 {
		return nil
	}

	p.setStatus(StatusSubmitting, "")
	start := time.Now()

	tx, err := p.submitBatch(ctx, batch)
	if err != nil {
		p.setStatus(StatusFailed, "")
		metrics.RecordChainSubmission("failed", 0)
		return err
	}

	p.setStatus(StatusPending, tx.Hash().Hex())
	p.logger.Info("Submitted price batch",
		"tx", tx.Hash().Hex(), "assets", len(batch))

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.TxTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, p.client, tx)
	if err != nil {
		p.setStatus(StatusFailed, tx.Hash().Hex())
		metrics.RecordChainSubmission("failed", 0)
		return fmt.Errorf("batch %s not confirmed: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		p.setStatus(StatusFailed, tx.Hash().Hex())
		metrics.RecordChainSubmission("reverted", 0)
		return fmt.Errorf("%w: %s", ErrTransactionReverted, tx.Hash().Hex())
	}

	p.mu.Lock()
	for _, entry := range batch {
		p.lastPublished[entry.Asset] = entry.PriceWei.String()
	}
	p.status = StatusConfirmed
	p.mu.Unlock()

	metrics.RecordChainSubmission("confirmed", time.Since(start))
	p.logger.Info("Price batch confirmed",
		"tx", tx.Hash().Hex(), "block", receipt.BlockNumber.String())
	return nil
}

func (p *Publisher) submitBatch(ctx context.Context, batch []BatchEntry) (*types.Transaction, error) {
	tokens := make([]common.Address, len(batch))
	prices := make([]*big.Int, len(batch))
	timestamps := make([]*big.Int, len(batch))
	confidences := make([]uint8, len(batch))
	sourceCounts := make([]uint8, len(batch))
	for i, entry := range batch {
		tokens[i] = entry.Token
		prices[i] = entry.PriceWei
		timestamps[i] = entry.TimestampMs
		confidences[i] = entry.Confidence
		sourceCounts[i] = entry.SourceCount
	}

	var (
		input []byte
		err   error
	)
	if len(batch) == 1 {
		input, err = p.oracle.Pack("updatePrice",
			tokens[0], prices[0], timestamps[0], confidences[0], sourceCounts[0])
	} else {
		input, err = p.oracle.Pack("updatePrices",
			tokens, prices, timestamps, confidences, sourceCounts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pack calldata: %w", err)
	}

	nonce, err := p.client.PendingNonceAt(ctx, p.from)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	gasLimit, err := p.client.EstimateGas(ctx, ethereumCallMsg(p.from, p.to, input))
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTransaction(nonce, p.to, big.NewInt(0), gasLimit, gasPrice, input)
	signer := types.LatestSignerForChainID(big.NewInt(p.cfg.ChainID))
	signed, err := types.SignTx(tx, signer, p.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := p.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	return signed, nil
}

func ethereumCallMsg(from, to common.Address, input []byte) ethereum.CallMsg {
	return ethereum.CallMsg{From: from, To: &to, Data: input}
}

// BuildBatch selects the assets worth publishing: those with a configured
// token address whose wei price differs from the last confirmed batch.
// The result is ordered by asset for deterministic calldata.
func BuildBatch(prices map[string]feed.AggregatedPrice, tokens map[string]string, lastPublished map[string]string) []BatchEntry {
	assets := make([]string, 0, len(prices))
	for asset := range prices {
		if _, ok := tokens[asset]; ok {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)

	batch := make([]BatchEntry, 0, len(assets))
	for _, asset := range assets {
		price := prices[asset]
		wei := ToWei(price.Price)
		if wei.Sign() <= 0 {
			continue
		}
		if lastPublished[asset] == wei.String() {
			continue
		}

		confidence := price.Confidence
		if confidence > 100 {
			confidence = 100
		}
		sourceCount := price.SourceCount
		if sourceCount > 255 {
			sourceCount = 255
		}

		batch = append(batch, BatchEntry{
			Asset:       asset,
			Token:       common.HexToAddress(tokens[asset]),
			PriceWei:    wei,
			TimestampMs: big.NewInt(price.Timestamp),
			Confidence:  uint8(confidence),
			SourceCount: uint8(sourceCount),
		})
	}
	return batch
}

// ToWei converts a decimal price to the contract's 18-decimal fixed-point
// representation, truncating any precision beyond that.
func ToWei(price decimal.Decimal) *big.Int {
	return price.Shift(weiDecimals).Truncate(0).BigInt()
}
