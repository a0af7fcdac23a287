package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/sensiblebit/cmsutil/internal/source"
	"github.com/sensiblebit/cmsutil/internal/store"
)

// openStore opens the certificate store selected by the global flags: a
// PFX or JKS container file when given, otherwise the named store for the
// selected store type. The caller owns the returned handle and must close
// it after the operation, on every exit path.
func openStore() (*store.Store, error) {
	if pfxPath != "" && jksPath != "" {
		return nil, errors.New("--pfx and --jks are mutually exclusive")
	}

	switch {
	case pfxPath != "":
		data, err := os.ReadFile(pfxPath)
		if err != nil {
			return nil, fmt.Errorf("reading PFX file: %w", err)
		}
		return store.OpenPFX(data, password)
	case jksPath != "":
		data, err := os.ReadFile(jksPath)
		if err != nil {
			return nil, fmt.Errorf("reading JKS file: %w", err)
		}
		return store.OpenJKS(data, password)
	default:
		return openNamedStore()
	}
}

// openNamedStore opens the named store for the configured kind.
func openNamedStore() (*store.Store, error) {
	cfg, err := store.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	kind, err := store.ParseKind(storeType)
	if err != nil {
		return nil, err
	}
	return store.Open(kind, storeName, cfg)
}

// openSource opens the message input: a mapped file, or buffered stdin.
func openSource() (*source.Source, error) {
	if inputPath != "" {
		return source.Open(inputPath)
	}
	return source.FromReader(os.Stdin)
}

// keyOptions builds the key-acquisition options from the global flags.
func keyOptions() store.KeyOptions {
	return store.KeyOptions{Silent: quiet, PIN: password}
}

// writeOutput writes the operation result only after the whole transform
// has succeeded, so a failed run never leaves a partial output file.
// Binary results are refused on a terminal stdout to avoid wrecking it.
func writeOutput(data []byte, binary bool) error {
	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0600); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
		return nil
	}
	fd := os.Stdout.Fd()
	if binary && (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)) {
		return errors.New("refusing to write binary CMS data to a terminal; use --out or redirect stdout")
	}
	if _, err := os.Stdout.Write(data); err != nil {
		return fmt.Errorf("writing to stdout: %w", err)
	}
	return nil
}
