package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Seams for tests.
var (
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readPassword    = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
)

// promptConfirmer asks yes/no questions on the terminal. --yes answers every
// prompt with yes; without a terminal every prompt is answered no.
type promptConfirmer struct {
	in          *bufio.Reader
	out         io.Writer
	assumeYes   bool
	interactive bool
}

func newPromptConfirmer(assumeYes bool) *promptConfirmer {
	return &promptConfirmer{
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		assumeYes:   assumeYes,
		interactive: stdinIsTerminal(),
	}
}

func (c *promptConfirmer) Confirm(prompt string) (bool, error) {
	if c.assumeYes {
		fmt.Fprintf(c.out, "%s [y/N] y (--yes)\n", prompt)
		return true, nil
	}
	if !c.interactive {
		fmt.Fprintf(c.out, "%s [y/N] n (no terminal; pass --yes to confirm)\n", prompt)
		return false, nil
	}

	fmt.Fprintf(c.out, "%s [y/N] ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	return isYes(line), nil
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "s", "si", "sí":
		return true
	}
	return false
}

// promptPassphrase reads a passphrase without echo. BODEGA_PASSPHRASE is
// used instead when set, for unattended restores. With confirm the
// passphrase must be typed twice.
func promptPassphrase(out io.Writer, prompt string, confirm bool) (string, error) {
	if p := os.Getenv("BODEGA_PASSPHRASE"); p != "" {
		return p, nil
	}
	if !stdinIsTerminal() {
		return "", errors.New("a passphrase is required but stdin is not a terminal (set BODEGA_PASSPHRASE)")
	}

	fmt.Fprint(out, prompt)
	first, err := readPassword()
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(first) == 0 {
		return "", errors.New("passphrase must not be empty")
	}
	if !confirm {
		return string(first), nil
	}

	fmt.Fprint(out, "Repeat passphrase: ")
	second, err := readPassword()
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passphrases do not match")
	}
	return string(first), nil
}
