// Package ownerkey generates an owner signing key for a wallet account.
package ownerkey

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/louisbranch/warden/internal/wallet/authz"
)

// Run generates an owner key pair and writes the PEM export along with the
// derived account owner address.
func Run(out io.Writer) error {
	if out == nil {
		return errors.New("output is required")
	}
	key, err := authz.GenerateOwnerKey()
	if err != nil {
		return fmt.Errorf("generate owner key: %w", err)
	}
	pemBytes, err := key.EncodePEM()
	if err != nil {
		return fmt.Errorf("encode owner key: %w", err)
	}
	addr, err := key.Address()
	if err != nil {
		return fmt.Errorf("derive owner address: %w", err)
	}
	if _, err := out.Write(pemBytes); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "# owner address: %s\n", addr); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "# owner public key: %s\n", hex.EncodeToString(key.PublicKeyBytes())); err != nil {
		return err
	}
	return nil
}
