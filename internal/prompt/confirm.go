package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Confirmer asks yes/no questions on a terminal.
type Confirmer struct {
	In            io.Reader
	Out           io.Writer
	IsInteractive func() bool
}

// DefaultConfirmer reads stdin and counts it as interactive only when it is a
// character device.
func DefaultConfirmer() Confirmer {
	return Confirmer{In: os.Stdin, Out: os.Stdout, IsInteractive: stdinIsTerminal}
}

func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// ConfirmOverwrite asks before a run replaces count existing caption files.
// yes skips the question; so does having nothing to replace.
func (c Confirmer) ConfirmOverwrite(count int, yes bool) (bool, error) {
	if yes || count == 0 {
		return true, nil
	}
	if !c.interactive() {
		return false, fmt.Errorf("non-interactive stdin: use -y to overwrite %d existing caption files", count)
	}
	return c.ask(fmt.Sprintf("Warning: %d caption files already exist and will be overwritten. Continue?", count))
}

func (c Confirmer) interactive() bool {
	return c.IsInteractive != nil && c.IsInteractive()
}

// ask prints question and accepts y or yes in any case. Anything else,
// including EOF, is a no.
func (c Confirmer) ask(question string) (bool, error) {
	if c.Out != nil {
		fmt.Fprintf(c.Out, "%s (y/n): ", question)
	}
	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
