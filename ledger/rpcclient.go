package ledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/time/rate"

	"github.com/catena-chat/catena/channel"
)

// Signer is the capability Client needs to authenticate a state-changing
// call as a specific NEAR account. The contracts spec.md §6 names
// (`set_public_key`, `publish`) are `#[payable]` methods that authenticate
// the caller purely through `env::predecessor_account_id()` on a signed
// transaction, never through a client-asserted account_id field (see
// original_source/key-manager/src/lib.rs::set_public_key) — so Client must
// actually sign, not just assert, who is calling.
//
// Grounded on original_source/client/src/wallet.rs::Wallet::transact, which
// builds and signs a near_primitives::transaction::Transaction{nonce,
// block_hash, public_key, signer_id, receiver_id, actions} before
// broadcasting it. keystore.SigningKey implements this interface.
type Signer interface {
	AccountID() string
	PublicKey() ed25519.PublicKey
	Sign(payload []byte) []byte
}

// Client is a JSON-RPC-over-HTTP implementation of both Repository and
// KeyRegistry against the two contracts spec.md §6 names: a key registry
// (`get_public_key`/`set_public_key`) and a message repository
// (`get_message`/`publish`). It is the one place this module falls back to
// the standard library (net/http) rather than a third-party client — see
// SPEC_FULL.md §6.2 for why.
//
// Grounded on original_source/client/src/message_repository.rs and
// key_registry.rs for the call shapes (view for reads, transact for
// writes, base64 args/results), and client2/connection.go for the
// retry/backoff/logging structure.
type Client struct {
	endpoint           string
	keyRegistryAccount string
	repositoryAccount  string
	signer             Signer
	httpClient         *http.Client
	limiter            *rate.Limiter
	logger             *log.Logger

	mu    sync.Mutex
	nonce uint64
}

// NewClient constructs an RPC client against endpoint (an https:// URL, or
// the literal "mainnet"/"testnet" resolved by the caller beforehand per
// spec.md §6's `network` configuration variable). signer authenticates the
// payable calls (SetPublicKey, Put); it may be nil if the caller will only
// ever issue read-only calls (GetPublicKey, Get), which need no signature.
func NewClient(endpoint, keyRegistryAccount, repositoryAccount string, signer Signer) *Client {
	return &Client{
		endpoint:           endpoint,
		keyRegistryAccount: keyRegistryAccount,
		repositoryAccount:  repositoryAccount,
		signer:             signer,
		httpClient:         &http.Client{Timeout: 30 * time.Second},
		// A conservative default pace so a burst of retries never hammers
		// the RPC endpoint; spec.md §7 leaves backoff entirely to the
		// caller/client, this is that policy.
		limiter: rate.NewLimiter(rate.Limit(20), 5),
		logger:  log.Default().With("component", "ledger.rpcclient"),
	}
}

type rpcRequest struct {
	Method    string          `json:"method"`
	AccountId string          `json:"account_id"`
	Args      json.RawMessage `json:"args"`
	Signed    *signedEnvelope `json:"signed,omitempty"`
}

// signedEnvelope is the signed-transaction analogue of wallet.rs's
// Transaction{nonce, block_hash, public_key, signer_id, receiver_id,
// actions}.sign(signer): this JSON-RPC surface has no block_hash/access-key
// view call of its own, so Nonce is a client-local monotonic counter rather
// than one synced against the chain, and Method/Args/AccountId (the
// contract being called) stand in for actions/receiver_id. The signature
// covers exactly those fields, CBOR-encoded for a canonical byte
// representation (fxamacker/cbor, already this module's wire/state codec).
type signedEnvelope struct {
	SignerAccountId string `json:"signer_account_id"`
	PublicKey       string `json:"public_key"`
	Nonce           uint64 `json:"nonce"`
	Signature       string `json:"signature"`
}

type transactionPayload struct {
	SignerAccountId   string
	ReceiverAccountId string
	Method            string
	Args              json.RawMessage
	Nonce             uint64
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// call issues method against accountId. write selects whether the call must
// be authenticated as a specific NEAR account (SetPublicKey, Put) or is a
// read-only view (GetPublicKey, Get) that the contracts never gate on the
// caller's identity.
func (c *Client) call(ctx context.Context, accountId, method string, args any, write bool) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	argBytes, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode rpc args: %w", err)
	}

	req := rpcRequest{Method: method, AccountId: accountId, Args: argBytes}
	if write {
		signed, err := c.sign(accountId, method, argBytes)
		if err != nil {
			return nil, err
		}
		req.Signed = signed
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode rpc request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, WrapRepositoryError(method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("rpc call failed", "method", method, "err", err)
		return nil, WrapRepositoryError(method, err)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, WrapRepositoryError(method, err)
	}
	if decoded.Error != "" {
		return nil, WrapRepositoryError(method, fmt.Errorf("%s", decoded.Error))
	}
	return decoded.Result, nil
}

// sign builds and signs a transactionPayload authenticating this call as
// c.signer's account, mirroring wallet.rs::Wallet::transact's
// sync-nonce-then-sign sequence with a client-local nonce in place of an
// access-key view call.
func (c *Client) sign(receiverAccountId, method string, argBytes json.RawMessage) (*signedEnvelope, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("ledger: %s requires a signing key (key_file_path) but none was configured", method)
	}

	c.mu.Lock()
	c.nonce++
	nonce := c.nonce
	c.mu.Unlock()

	payload := transactionPayload{
		SignerAccountId:   c.signer.AccountID(),
		ReceiverAccountId: receiverAccountId,
		Method:            method,
		Args:              argBytes,
		Nonce:             nonce,
	}
	canonical, err := cbor.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode transaction payload: %w", err)
	}

	signature := c.signer.Sign(canonical)
	return &signedEnvelope{
		SignerAccountId: c.signer.AccountID(),
		PublicKey:       base64.StdEncoding.EncodeToString(c.signer.PublicKey()),
		Nonce:           nonce,
		Signature:       base64.StdEncoding.EncodeToString(signature),
	}, nil
}

// GetPublicKey implements KeyRegistry.
func (c *Client) GetPublicKey(ctx context.Context, account string) (channel.CorrespondentId, error) {
	result, err := c.call(ctx, c.keyRegistryAccount, "get_public_key", map[string]string{"account_id": account}, false)
	if err != nil {
		return channel.CorrespondentId{}, err
	}

	var encoded *string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return channel.CorrespondentId{}, WrapRepositoryError("get_public_key", err)
	}
	if encoded == nil {
		return channel.CorrespondentId{}, ErrPeerUnregistered
	}

	raw, err := base64.StdEncoding.DecodeString(*encoded)
	if err != nil {
		return channel.CorrespondentId{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if len(raw) != 32 {
		return channel.CorrespondentId{}, fmt.Errorf("%w: got %d bytes", ErrMalformedKey, len(raw))
	}

	var id channel.CorrespondentId
	copy(id[:], raw)
	return id, nil
}

// SetPublicKey implements KeyRegistry.
func (c *Client) SetPublicKey(ctx context.Context, publicKey channel.CorrespondentId) error {
	encoded := base64.StdEncoding.EncodeToString(publicKey[:])
	_, err := c.call(ctx, c.keyRegistryAccount, "set_public_key", map[string]string{"public_key": encoded}, true)
	return err
}

type encodedMessage struct {
	Message          string `json:"message"`
	BlockTimestampMs uint64 `json:"block_timestamp_ms"`
}

// Get implements Repository.
func (c *Client) Get(ctx context.Context, slot channel.SlotAddress) (*StoredMessage, error) {
	hashArg := base64.StdEncoding.EncodeToString(slot[:])
	result, err := c.call(ctx, c.repositoryAccount, "get_message", map[string]string{"sequence_hash": hashArg}, false)
	if err != nil {
		return nil, err
	}

	var decoded *encodedMessage
	if err := json.Unmarshal(result, &decoded); err != nil {
		return nil, WrapRepositoryError("get_message", err)
	}
	if decoded == nil {
		return nil, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(decoded.Message)
	if err != nil {
		return nil, WrapRepositoryError("get_message", err)
	}
	return &StoredMessage{Ciphertext: ciphertext, BlockTimestampMs: decoded.BlockTimestampMs}, nil
}

// Put implements Repository.
func (c *Client) Put(ctx context.Context, slot channel.SlotAddress, ciphertext []byte) error {
	hashArg := base64.StdEncoding.EncodeToString(slot[:])
	msgArg := base64.StdEncoding.EncodeToString(ciphertext)
	_, err := c.call(ctx, c.repositoryAccount, "publish", map[string]string{
		"sequence_hash": hashArg,
		"message":       msgArg,
	}, true)
	if err != nil {
		if isSlotOccupied(err) {
			return ErrSlotOccupied
		}
		return err
	}
	return nil
}

func isSlotOccupied(err error) bool {
	// The contract surfaces slot-occupied failures as an RPC error whose
	// text names the condition; spec.md §6 does not define a structured
	// error code for it, so the client matches on the message it specifies.
	return err != nil && bytes.Contains([]byte(err.Error()), []byte("already occupied"))
}

var _ Repository = (*Client)(nil)
var _ KeyRegistry = (*Client)(nil)
