package main

import (
	"github.com/spf13/cobra"

	"github.com/sensiblebit/cmsutil/internal"
)

var (
	logLevel   string
	password   string
	quiet      bool
	storeType  string
	storeName  string
	pfxPath    string
	jksPath    string
	inputPath  string
	outputPath string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "cmsutil",
	Short: "CMS encoding utility to sign/encrypt or decrypt/verify a CMS-encoded message",
	Long: `Sign and encrypt a message for one or more recipients, or decrypt and
verify one, using certificates resolved from a certificate store.

The store is either a named store for the selected store type (user,
machine, or service), or a PFX/PKCS#12 or JKS container given as a file.
Certificates are identified by a case-insensitive substring of their
subject DN.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetupLogger(logLevel)
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&password, "password", "p", "", "Smart card PIN, protected key passphrase, or container password")
	pf.StringVarP(&storeType, "store-type", "t", "user", "Certificate store type: user, machine, or service")
	pf.StringVar(&storeName, "store", "my", "Logical store name")
	pf.StringVarP(&pfxPath, "pfx", "f", "", "Use a PFX/PKCS#12 file as the certificate store")
	pf.StringVar(&jksPath, "jks", "", "Use a Java KeyStore file as the certificate store")
	pf.StringVarP(&inputPath, "in", "i", "", "Input file (default: stdin)")
	pf.StringVarP(&outputPath, "out", "o", "", "Output file (default: stdout)")
	pf.StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&configPath, "config", "", "Store configuration file (YAML)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Disable interactive passphrase prompts")

	registerCompletion(rootCmd, completionInput{
		flagName:     "store-type",
		completeFunc: fixedCompletion("user", "machine", "service"),
	})
	registerCompletion(rootCmd, completionInput{
		flagName:     "log-level",
		completeFunc: fixedCompletion("debug", "info", "warn", "error"),
	})

	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(storeCmd)
}
