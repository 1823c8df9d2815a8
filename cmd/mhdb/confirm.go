package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/agent-matrix/matrixhub-db/internal/provision"
)

// confirm prompts before a destructive action. Only the literal answer
// "yes" proceeds; anything else, including EOF, declines.
func confirm(in io.Reader, out io.Writer, action string) error {
	fmt.Fprintf(out, "This will %s.\nType 'yes' to continue: ", action)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimSpace(line) != "yes" {
		return provision.ErrConfirmationDeclined
	}
	return nil
}
