package directory

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/pkg/errors"
)

// DeriveConsAddress derives a validator's consensus address forms from
// its base64 consensus public key: SHA-256 of the key bytes truncated
// to 20 bytes, returned both bech32-encoded with the network's valcons
// prefix and as uppercase hex.
func DeriveConsAddress(consensusPubKey, valconsPrefix string) (consAddress, consHex string, err error) {
	raw, err := base64.StdEncoding.DecodeString(consensusPubKey)
	if err != nil {
		return "", "", errors.Wrap(err, "could not decode consensus public key")
	}
	sum := sha256.Sum256(raw)
	addr := sum[:20]
	consHex = strings.ToUpper(hex.EncodeToString(addr))
	converted, err := bech32.ConvertBits(addr, 8, 5, true)
	if err != nil {
		return "", "", errors.Wrap(err, "could not convert address bits")
	}
	consAddress, err = bech32.Encode(valconsPrefix, converted)
	if err != nil {
		return "", "", errors.Wrap(err, "could not bech32 encode address")
	}
	return consAddress, consHex, nil
}
