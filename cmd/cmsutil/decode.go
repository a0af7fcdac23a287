package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/cmsutil/internal/cms"
	"github.com/sensiblebit/cmsutil/internal/store"
)

var decodeTrust string

var decodeCmd = &cobra.Command{
	Use:   "decode <recipient>",
	Short: "Decrypt and verify data",
	Long: `Decrypt the enveloped input using the recipient's private key, verify
the signature of the embedded SignedData, and output the original message.

The recipient query must resolve to a certificate with a usable private
key in the store. By default the signature is verified against the signer
certificate embedded in the message; --trust additionally validates the
signer's chain against a root set.`,
	Example: `  cmsutil decode Bob -i message.p7m -o document.txt
  cmsutil decode -f bob.pfx -p secret Bob --trust mozilla < message.p7m`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringVar(&decodeTrust, "trust", "none", "Signer trust policy: none, system, or mozilla")
	registerCompletion(decodeCmd, completionInput{
		flagName:     "trust",
		completeFunc: fixedCompletion("none", "system", "mozilla"),
	})
}

func runDecode(cmd *cobra.Command, args []string) error {
	query := args[0]

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	src, err := openSource()
	if err != nil {
		return err
	}
	defer src.Close()

	recipient, key, ok := st.FirstUsableKey(st.FindBySubject(query), keyOptions())
	if !ok {
		return &store.NotFoundError{Role: "recipient", Query: query}
	}
	slog.Debug("acquired recipient certificate", "query", query, "subject", recipient.Subject())
	slog.Debug("acquired private key", "provider", key.Provider(), "key", key.Name())

	if password != "" {
		if err := st.ApplyPIN(key, password); err != nil {
			return err
		}
	}

	roots, err := cms.TrustPool(decodeTrust)
	if err != nil {
		return err
	}

	plain, err := cms.DecryptAndVerify(st, src.Bytes(), keyOptions(), cms.VerifyOptions{Roots: roots})
	if err != nil {
		return err
	}
	return writeOutput(plain, false)
}
