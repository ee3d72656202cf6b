package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Input supplies menu selections and free text answers.
type Input interface {
	// ReadKey returns the next menu selector. io.EOF ends the session.
	ReadKey() (rune, error)
	// ReadLine returns the next line without its line terminator.
	ReadLine() (string, error)
}

// NewInput reads single keypresses when f is a terminal and whole lines otherwise.
func NewInput(f *os.File, echo io.Writer) Input {
	r := bufio.NewReader(f)
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		return &terminalInput{fd: fd, r: r, echo: echo}
	}
	return &lineInput{r: r}
}

// lineInput takes the first rune of each line as the selector.
type lineInput struct {
	r *bufio.Reader
}

// NewLineInput reads selectors and answers line by line from r.
func NewLineInput(r io.Reader) Input {
	return &lineInput{r: bufio.NewReader(r)}
}

func (in *lineInput) ReadKey() (rune, error) {
	line, err := in.ReadLine()
	if err != nil {
		return 0, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, nil
	}
	return []rune(line)[0], nil
}

func (in *lineInput) ReadLine() (string, error) {
	return readLine(in.r)
}

// terminalInput switches the terminal to raw mode for the duration of one keypress.
type terminalInput struct {
	fd   int
	r    *bufio.Reader
	echo io.Writer
}

const (
	keyInterrupt = 0x03 // Ctrl-C
	keyEOT       = 0x04 // Ctrl-D
)

func (in *terminalInput) ReadKey() (rune, error) {
	state, err := term.MakeRaw(in.fd)
	if err != nil {
		return 0, fmt.Errorf("enter raw mode: %w", err)
	}
	key, _, err := in.r.ReadRune()
	if rerr := term.Restore(in.fd, state); rerr != nil && err == nil {
		err = fmt.Errorf("restore terminal: %w", rerr)
	}
	if err != nil {
		return 0, err
	}
	if key == keyInterrupt || key == keyEOT {
		return 0, io.EOF
	}

	// raw mode disables echo
	fmt.Fprintf(in.echo, "%c", key)
	return key, nil
}

func (in *terminalInput) ReadLine() (string, error) {
	return readLine(in.r)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
