// Package chain models the on-chain operations the wallet core authorizes and
// the client protocol used to submit them. Contract semantics stay behind the
// Client interface; this package only fixes the client-observable encoding.
package chain

import (
	"encoding/binary"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/louisbranch/warden/internal/wallet/account"
)

// Signature is one signer-domain contribution to an authorization artifact.
type Signature struct {
	Domain account.Factor
	Bytes  []byte
}

// Operation is a pending state change against a smart account.
type Operation struct {
	Account  account.Address
	To       account.Address
	Value    *big.Int
	CallData []byte
	Nonce    uint64
}

// Hash returns the digest signed by every factor authorizing the operation.
//
// Layout: keccak256(account || to || value as 32-byte word || nonce as 8-byte
// big-endian || keccak256(callData)). Hashing the calldata separately keeps
// the preimage fixed-width.
func (op Operation) Hash() [32]byte {
	var value [32]byte
	if op.Value != nil {
		op.Value.FillBytes(value[:])
	}
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], op.Nonce)

	inner := sha3.NewLegacyKeccak256()
	inner.Write(op.CallData)
	callDataHash := inner.Sum(nil)

	outer := sha3.NewLegacyKeccak256()
	outer.Write(op.Account.Bytes())
	outer.Write(op.To.Bytes())
	outer.Write(value[:])
	outer.Write(nonce[:])
	outer.Write(callDataHash)

	var digest [32]byte
	copy(digest[:], outer.Sum(nil))
	return digest
}

// selector returns the first 4 bytes of the keccak digest of a method name.
func selector(method string) []byte {
	digest := sha3.NewLegacyKeccak256()
	digest.Write([]byte(method))
	return digest.Sum(nil)[:4]
}

// word left-pads a big integer into a 32-byte argument word.
func word(value *big.Int) []byte {
	var out [32]byte
	if value != nil {
		value.FillBytes(out[:])
	}
	return out[:]
}

// NewAddDeviceKeyOperation builds the operation that registers an additional
// device passkey on a deployed account.
func NewAddDeviceKeyOperation(addr account.Address, key account.PublicKeyPoint, nonce uint64) Operation {
	callData := selector("add_device_key(uint256,uint256)")
	callData = append(callData, word(key.X)...)
	callData = append(callData, word(key.Y)...)
	return Operation{
		Account:  addr,
		To:       addr,
		Value:    new(big.Int),
		CallData: callData,
		Nonce:    nonce,
	}
}

// NewSetTwoFactorOperation builds the operation that toggles the account's
// two-factor requirement.
func NewSetTwoFactorOperation(addr account.Address, enabled bool, nonce uint64) Operation {
	flag := new(big.Int)
	if enabled {
		flag.SetInt64(1)
	}
	callData := selector("set_two_factor(bool)")
	callData = append(callData, word(flag)...)
	return Operation{
		Account:  addr,
		To:       addr,
		Value:    new(big.Int),
		CallData: callData,
		Nonce:    nonce,
	}
}
