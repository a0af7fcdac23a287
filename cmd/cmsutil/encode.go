package main

import (
	"crypto/x509"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/cmsutil/internal/cms"
	"github.com/sensiblebit/cmsutil/internal/store"
)

var encodeSigner string

var encodeCmd = &cobra.Command{
	Use:   "encode -s <signer> <recipient>...",
	Short: "Sign and encrypt data",
	Long: `Sign the input with the signer's private key, then encrypt the signed
message for every recipient.

The signer query resolves to the first matching certificate that has a
usable private key. Each recipient query must match at least one
certificate; every match becomes its own recipient of the envelope, so a
query matching two certificates produces two RecipientInfo entries.`,
	Example: `  cmsutil encode -s Alice Bob -i plain.txt -o message.p7m
  cmsutil encode -f alice.pfx -p secret -s Alice Bob Carol < plain.txt > message.p7m`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEncode,
}

func init() {
	encodeCmd.Flags().StringVarP(&encodeSigner, "signer", "s", "", "Signer certificate subject query")
	if err := encodeCmd.MarkFlagRequired("signer"); err != nil {
		panic(err)
	}
}

func runEncode(cmd *cobra.Command, args []string) error {
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

	signer, key, ok := st.FirstUsableKey(st.FindBySubject(encodeSigner), keyOptions())
	if !ok {
		return &store.NotFoundError{Role: "signer", Query: encodeSigner}
	}
	slog.Debug("acquired signer certificate", "query", encodeSigner, "subject", signer.Subject())
	slog.Debug("acquired private key", "provider", key.Provider(), "key", key.Name())

	var recipients []*x509.Certificate
	for _, query := range args {
		matches := st.FindBySubject(query)
		if len(matches) == 0 {
			return &store.NotFoundError{Role: "recipient", Query: query}
		}
		for _, m := range matches {
			recipients = append(recipients, m.Cert)
		}
	}
	slog.Debug("resolved recipient certificates", "count", len(recipients))

	if password != "" {
		if err := st.ApplyPIN(key, password); err != nil {
			return err
		}
	}

	content, err := cms.NewBuilder().
		Signer(signer.Cert, key).
		Recipients(recipients...).
		Build()
	if err != nil {
		return err
	}

	out, err := content.SignAndEncrypt(src.Bytes())
	if err != nil {
		return err
	}
	return writeOutput(out, true)
}
