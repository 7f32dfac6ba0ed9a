package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/term"
)

// Prompter reads answers from the user.
type Prompter interface {
	// Line reads a visible answer.
	Line(label string) (string, error)
	// Secret reads an answer without echoing it.
	Secret(label string) (string, error)
}

// termPrompter prompts on out and reads from in, hiding secrets when in is
// a terminal.
type termPrompter struct {
	in  *os.File
	r   *bufio.Reader
	out io.Writer
}

func newTermPrompter(in *os.File, out io.Writer) *termPrompter {
	return &termPrompter{in: in, r: bufio.NewReader(in), out: out}
}

func (p *termPrompter) Line(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	return p.readLine()
}

func (p *termPrompter) Secret(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	fd := int(p.in.Fd())
	if !term.IsTerminal(fd) {
		return p.readLine()
	}
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (p *termPrompter) readLine() (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// spin runs fn behind a spinner when the session is interactive.
func (a *App) spin(suffix string, fn func() error) error {
	if !a.Interactive() {
		return fn()
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(a.Stderr))
	s.Suffix = " " + suffix
	s.Start()
	defer s.Stop()
	return fn()
}
