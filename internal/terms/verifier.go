// Package terms validates signed terms acceptances and lightweight wallet
// ownership proofs. The canonical terms hash is computed once at construction
// from the terms document text; every acceptance is checked against it.
package terms

import (
	"math/big"
	"strings"

	"cryptoloans-backend/internal/apperr"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var acceptanceTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"TermsAcceptance": {
		{Name: "wallet", Type: "address"},
		{Name: "termsHash", Type: "string"},
		{Name: "timestamp", Type: "uint256"},
	},
}

// Acceptance is the structured message a wallet signs to accept the terms.
type Acceptance struct {
	Wallet       string `json:"wallet"`
	TermsHash    string `json:"termsHash"`
	TermsVersion string `json:"termsVersion"`
	Timestamp    int64  `json:"timestamp"`
	Signature    string `json:"signature"`
}

type Verifier struct {
	text    string
	hash    string // 0x-prefixed lower-case keccak256 of text
	version string
	domain  apitypes.TypedDataDomain
}

func NewVerifier(termsText, termsVersion string, chainID int64, verifyingContract string) *Verifier {
	return &Verifier{
		text:    termsText,
		hash:    hexutil.Encode(crypto.Keccak256([]byte(termsText))),
		version: termsVersion,
		domain: apitypes.TypedDataDomain{
			Name:              "CryptoLoans",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: common.HexToAddress(verifyingContract).Hex(),
		},
	}
}

func (v *Verifier) Text() string    { return v.text }
func (v *Verifier) Hash() string    { return v.hash }
func (v *Verifier) Version() string { return v.version }

// Domain exposes the typed-data domain for clients building signatures.
func (v *Verifier) Domain() map[string]any {
	return map[string]any{
		"name":              v.domain.Name,
		"version":           v.domain.Version,
		"chainId":           (*big.Int)(v.domain.ChainId).Int64(),
		"verifyingContract": v.domain.VerifyingContract,
	}
}

// VerifyAcceptance checks the four acceptance requirements, failing with a
// ValidationError naming the offending field: canonical terms hash, active
// version, positive timestamp, and a signature recovering to the claimed
// wallet. It returns the normalized (lower-case) wallet on success.
func (v *Verifier) VerifyAcceptance(acc Acceptance) (string, error) {
	wallet := strings.TrimSpace(acc.Wallet)
	if !common.IsHexAddress(wallet) {
		return "", apperr.Validation("wallet is not a valid address").WithDetail("field", "wallet")
	}
	submitted := strings.ToLower(strings.TrimSpace(acc.TermsHash))
	if !strings.HasPrefix(submitted, "0x") {
		submitted = "0x" + submitted
	}
	if submitted != v.hash {
		return "", apperr.Validation("terms hash does not match the active terms document").
			WithDetail("field", "termsHash").WithDetail("expected", v.hash)
	}
	if acc.TermsVersion != v.version {
		return "", apperr.Validation("terms version %q is not the active version %q", acc.TermsVersion, v.version).
			WithDetail("field", "termsVersion")
	}
	if acc.Timestamp <= 0 {
		return "", apperr.Validation("timestamp must be a positive integer").WithDetail("field", "timestamp")
	}

	digest, err := v.acceptanceDigest(common.HexToAddress(wallet), acc.Timestamp)
	if err != nil {
		return "", apperr.Validation("could not encode acceptance message: %v", err).WithDetail("field", "signature")
	}
	recovered, err := recoverAddress(digest, acc.Signature)
	if err != nil {
		return "", apperr.Validation("signature is malformed: %v", err).WithDetail("field", "signature")
	}
	if !strings.EqualFold(recovered.Hex(), wallet) {
		return "", apperr.Validation("signature does not recover to wallet").
			WithDetail("field", "signature").WithDetail("recovered", strings.ToLower(recovered.Hex()))
	}
	return strings.ToLower(common.HexToAddress(wallet).Hex()), nil
}

func (v *Verifier) acceptanceDigest(wallet common.Address, timestamp int64) ([]byte, error) {
	typed := apitypes.TypedData{
		Types:       acceptanceTypes,
		PrimaryType: "TermsAcceptance",
		Domain:      v.domain,
		Message: apitypes.TypedDataMessage{
			"wallet":    wallet.Hex(),
			"termsHash": v.hash,
			"timestamp": math.NewHexOrDecimal256(timestamp),
		},
	}
	digest, _, err := apitypes.TypedDataAndHash(typed)
	return digest, err
}

// RecoverPersonalSign recovers the signer of a personal_sign message (the raw
// path used for wallet-ownership proofs when no typed data is involved). When
// walletHint is non-empty it must match the recovered address.
func RecoverPersonalSign(message, signature, walletHint string) (string, error) {
	digest := accounts.TextHash([]byte(message))
	recovered, err := recoverAddress(digest, signature)
	if err != nil {
		return "", apperr.Validation("signature is malformed: %v", err).WithDetail("field", "signature")
	}
	addr := strings.ToLower(recovered.Hex())
	if hint := strings.TrimSpace(walletHint); hint != "" && !strings.EqualFold(hint, addr) {
		return "", apperr.Validation("signature does not recover to declared wallet").
			WithDetail("field", "wallet").WithDetail("recovered", addr)
	}
	return addr, nil
}

func recoverAddress(digest []byte, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(withHexPrefix(signature))
	if err != nil {
		return common.Address{}, err
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, apperr.Validation("signature must be 65 bytes, got %d", len(sig))
	}
	// Accept both 0/1 and 27/28 recovery ids.
	adjusted := make([]byte, len(sig))
	copy(adjusted, sig)
	if adjusted[crypto.RecoveryIDOffset] >= 27 {
		adjusted[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest, adjusted)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func withHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") {
		return "0x" + s
	}
	return s
}
