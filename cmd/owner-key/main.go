// Package main provides a one-shot utility for owner key generation.
//
// It emits the P-256 owner signing key used for wallet operation
// authorization and pairing grants.
package main

import (
	"os"

	"github.com/louisbranch/warden/internal/platform/config"
	"github.com/louisbranch/warden/internal/tools/ownerkey"
)

func main() {
	if err := ownerkey.Run(os.Stdout); err != nil {
		config.Exitf("generate owner key: %v", err)
	}
}
