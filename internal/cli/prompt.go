package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	promptColor = color.New(color.FgCyan)
	warnColor   = color.New(color.FgYellow, color.Bold)
	failColor   = color.New(color.FgRed, color.Bold)
	okColor     = color.New(color.FgGreen)
)

var errNoAnswer = errors.New("no answer on standard input")

// prompter asks questions on the command's standard streams.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	yes bool
}

func newPrompter(cmd *cobra.Command, yes bool) *prompter {
	return &prompter{
		in:  bufio.NewReader(cmd.InOrStdin()),
		out: cmd.OutOrStdout(),
		yes: yes,
	}
}

// ask prints question and returns the answered line without its newline.
func (p *prompter) ask(question string) (string, error) {
	promptColor.Fprint(p.out, question)

	line, err := p.in.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		return "", errNoAnswer
	}

	return line, nil
}

// argOrAsk returns args[i] when present and asks question otherwise.
func (p *prompter) argOrAsk(args []string, i int, question string) (string, error) {
	if i < len(args) {
		return args[i], nil
	}

	return p.ask(question)
}

/*
 * @Description: ask until the answer is exactly "Y" or "n"; --yes answers Y
 * @return proceed
 * @return err
 */
func (p *prompter) confirm(format string, a ...any) (bool, error) {
	if p.yes {
		return true, nil
	}

	question := fmt.Sprintf(format, a...) + ", confirm (Y/n): "
	for {
		answer, err := p.ask(question)
		if err != nil {
			return false, err
		}
		switch answer {
		case "Y":
			return true, nil
		case "n":
			warnColor.Fprintln(p.out, "[!] Verification failed, exiting.")
			return false, nil
		}
	}
}

// progressPrinter returns a progress callback drawing a single updating line.
func progressPrinter(w io.Writer) func(float64) {
	return func(p float64) {
		fmt.Fprintf(w, "\rprogress: %.2f%%", p)
		if p >= 100 {
			fmt.Fprintln(w)
		}
	}
}
