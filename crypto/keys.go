package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a rendered address.
type AddressPrefix string

// YLDPrefix is the prefix carried by holder addresses on a yieldnet ledger.
const YLDPrefix AddressPrefix = "yld"

const addressLength = 20

// Address is a 20-byte holder identity rendered as bech32.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps raw address bytes with a prefix. The byte slice must be
// exactly 20 bytes.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != addressLength {
		panic(fmt.Sprintf("address must be %d bytes long", addressLength))
	}
	return Address{prefix: prefix, bytes: b}
}

// String renders the address in bech32 form.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the raw 20-byte form.
func (a Address) Bytes() []byte { return a.bytes }

// Prefix returns the human-readable prefix the address was built with.
func (a Address) Prefix() AddressPrefix { return a.prefix }

// DecodeAddress parses a bech32 string into an Address, validating the
// payload length.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != addressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long, got %d", addressLength, len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// PrivateKey is a secp256k1 private key used by node operators and holders.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey is the verifying half of a PrivateKey.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a fresh secp256k1 key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromBytes restores a key from its raw byte form.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the raw byte form of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// PubKey returns the public half of the key.
func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the holder address for the key.
func (k *PublicKey) Address() Address {
	return NewAddress(YLDPrefix, crypto.PubkeyToAddress(*k.PublicKey).Bytes())
}
