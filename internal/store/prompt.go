package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// TerminalPrompt reads a passphrase from the controlling terminal without
// echo. It fails when stdin is not a terminal (e.g., the message is being
// piped in), so batch invocations never block waiting for input.
func TerminalPrompt(subject string) (string, error) {
	fd := os.Stdin.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "Enter passphrase for %s: ", subject)
	pass, err := term.ReadPassword(int(fd))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}
