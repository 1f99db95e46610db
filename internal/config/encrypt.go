package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rowjay/tzwindow/internal/cryptoutil"
)

// EncryptConfigFile checks that inputPath holds a usable window configuration
// and writes it encrypted to outputPath. The input's format travels inside
// the sealed header.
func EncryptConfigFile(inputPath, outputPath, key string) error {
	if !isEncryptedPath(outputPath) {
		return fmt.Errorf("output %s must end in .enc", outputPath)
	}
	if filepath.Clean(inputPath) == filepath.Clean(outputPath) {
		return fmt.Errorf("refusing to overwrite %s", inputPath)
	}
	cfg, err := Load(inputPath)
	if err != nil {
		return err
	}
	if _, err := cfg.WindowTable(); err != nil {
		return err
	}

	plain, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return err
	}
	ciphertext, err := cryptoutil.SealConfig(plain, parsed, configTypeFromPath(inputPath))
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, ciphertext, 0o600)
}
