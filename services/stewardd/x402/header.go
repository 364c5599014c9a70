package x402

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// AuthorizationValidity bounds how long a signed payment header stays
// acceptable to the facilitator.
const AuthorizationValidity = 600 * time.Second

// Authorization is the EIP-3009 transfer authorization carried by the payment
// header. Values are decimal base-unit strings.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

type headerPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

type headerEnvelope struct {
	Version int           `json:"x402Version"`
	Scheme  string        `json:"scheme"`
	Network string        `json:"network"`
	Payload headerPayload `json:"payload"`
}

// TokenDomain identifies the EIP-712 domain of the settlement token contract.
type TokenDomain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract string
}

// signHeader produces the base64 payment header binding {to, value} to the
// funding wallet for the validity window.
func signHeader(key *ecdsa.PrivateKey, domain TokenDomain, network, to string, value *big.Int, now time.Time) (string, error) {
	if key == nil {
		return "", fmt.Errorf("signing key not configured")
	}
	if value == nil || value.Sign() <= 0 {
		return "", fmt.Errorf("authorization value must be positive")
	}
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	validAfter := big.NewInt(0)
	validBefore := big.NewInt(now.Add(AuthorizationValidity).Unix())

	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        from.Hex(),
			"to":          to,
			"value":       value.String(),
			"validAfter":  validAfter.String(),
			"validBefore": validBefore.String(),
			"nonce":       hexutil.Encode(nonce[:]),
		},
	}
	digest, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return "", fmt.Errorf("hash authorization: %w", err)
	}
	signature, err := crypto.Sign(digest, key)
	if err != nil {
		return "", fmt.Errorf("sign authorization: %w", err)
	}
	// Shift the recovery id into the 27/28 form contracts expect.
	signature[64] += 27

	envelope := headerEnvelope{
		Version: 1,
		Scheme:  "exact",
		Network: network,
		Payload: headerPayload{
			Signature: hexutil.Encode(signature),
			Authorization: Authorization{
				From:        from.Hex(),
				To:          to,
				Value:       value.String(),
				ValidAfter:  validAfter.String(),
				ValidBefore: validBefore.String(),
				Nonce:       hexutil.Encode(nonce[:]),
			},
		},
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
