package commands

import (
	"fmt"
	"os"
	"path"

	"github.com/mosaicnetworks/continuity/crypto"
	"github.com/spf13/cobra"
)

var keyDir string

// NewKeygenCmd produces the command that creates a key pair.
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}

	cmd.Flags().StringVar(&keyDir, "dir", _config.DataDir, "Directory where the key will be written")

	return cmd
}

func keygen(cmd *cobra.Command, args []string) error {
	pemKey := crypto.NewPemKey(keyDir)

	if existing, _ := pemKey.ReadKey(); existing != nil {
		return fmt.Errorf("a key already lives under: %s", keyDir)
	}

	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating key: %s", err)
	}

	if err := os.MkdirAll(path.Clean(keyDir), 0700); err != nil {
		return fmt.Errorf("writing private key: %s", err)
	}

	if err := pemKey.WriteKey(priv); err != nil {
		return fmt.Errorf("writing private key: %s", err)
	}

	fmt.Printf("Your key has been saved under: %s\n", keyDir)
	fmt.Printf("Your peer id is: %s\n", crypto.PublicKeyID(pub))
	fmt.Printf("Your public key is: %s\n", crypto.PublicKeyMultibase(pub))

	return nil
}
