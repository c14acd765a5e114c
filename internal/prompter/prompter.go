// Package prompter abstracts the yes/no and password prompts the engine
// needs from an operator (accepting a host key, entering a remote
// password) behind an interface, so tests can supply canned answers
// instead of driving a real terminal.
package prompter

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the operator yes/no and password questions.
type Prompter interface {
	AskYesNo(question string) (bool, error)
	AskPassword(prompt string) (string, error)
}

// CLI is the production Prompter: reads from stdin, writes prompts to
// stderr so they don't pollute piped stdout, and masks password input
// when stdin is a real terminal.
type CLI struct {
	In  io.Reader
	Out io.Writer
	fd  int // file descriptor backing In, for term.ReadPassword; 0 if unknown.
}

// NewCLI creates a CLI prompter reading from in (typically os.Stdin, fd 0)
// and writing prompts to out (typically os.Stderr).
func NewCLI(in io.Reader, out io.Writer, fd int) *CLI {
	return &CLI{In: in, Out: out, fd: fd}
}

func (c *CLI) AskYesNo(question string) (bool, error) {
	reader := bufio.NewReader(c.In)
	for {
		fmt.Fprintf(c.Out, "%s [y/n]: ", question)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(c.Out, "please answer y or n")
	}
}

func (c *CLI) AskPassword(prompt string) (string, error) {
	fmt.Fprintf(c.Out, "%s: ", prompt)
	if term.IsTerminal(c.fd) {
		pw, err := term.ReadPassword(c.fd)
		fmt.Fprintln(c.Out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	reader := bufio.NewReader(c.In)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Canned is a test Prompter returning pre-recorded answers in order.
type Canned struct {
	YesNo     []bool
	Passwords []string
	yesNoIdx  int
	pwIdx     int
}

func (c *Canned) AskYesNo(question string) (bool, error) {
	if c.yesNoIdx >= len(c.YesNo) {
		return false, fmt.Errorf("prompter: no more canned yes/no answers for %q", question)
	}
	v := c.YesNo[c.yesNoIdx]
	c.yesNoIdx++
	return v, nil
}

func (c *Canned) AskPassword(prompt string) (string, error) {
	if c.pwIdx >= len(c.Passwords) {
		return "", fmt.Errorf("prompter: no more canned passwords for %q", prompt)
	}
	v := c.Passwords[c.pwIdx]
	c.pwIdx++
	return v, nil
}
