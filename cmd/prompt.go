package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// terminalFd returns the descriptor of r when it is an interactive terminal
func terminalFd(r io.Reader) (int, bool) {
	f, ok := r.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// readSecret reads a value without echoing it. Input that is not a terminal
// is read as a single line, so secrets can be piped in.
// The caller is responsible for calling crypto.ClearBytes on the result.
func readSecret(in io.Reader, prompt io.Writer, label string) ([]byte, error) {
	if fd, ok := terminalFd(in); ok {
		fmt.Fprint(prompt, label)
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt) // New line after the hidden input
		if err != nil {
			return nil, fmt.Errorf("failed to read secret: %w", err)
		}
		return secret, nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// confirm asks a yes/no question on an interactive terminal. Without a
// terminal nothing is asked and the answer is no.
func confirm(in io.Reader, prompt io.Writer, question string) bool {
	if _, ok := terminalFd(in); !ok {
		return false
	}
	fmt.Fprintf(prompt, "%s [y/N]: ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
