package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chronologos/ttyrelay/internal/input"
	"github.com/chronologos/ttyrelay/internal/terminal"
)

var keytestCmd = &cobra.Command{
	Use:   "keytest",
	Short: "Print the input events decoded from this terminal",
	Long: `Put the terminal in raw mode and print every key, character and mouse
event exactly as the relay would forward it to a device. Press Ctrl-T to quit.`,
	Args: cobra.NoArgs,
	RunE: runKeytest,
}

func init() {
	rootCmd.AddCommand(keytestCmd)
}

func runKeytest(cmd *cobra.Command, _ []string) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("keytest needs an interactive terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer term.Restore(fd, state)

	out := cmd.OutOrStdout()
	mouse := []terminal.Mode{terminal.ModeMouseTracking, terminal.ModeSGRCoords}
	out.Write(terminal.SetModes(true, mouse...))
	defer out.Write(terminal.SetModes(false, mouse...))

	fmt.Fprint(out, "Press keys to see their events. Ctrl-T quits.\r\n")
	return printEvents(out, input.NewDecoder(os.Stdin))
}

// printEvents writes one line per event until an Interrupt or end of input.
func printEvents(w io.Writer, dec *input.Decoder) error {
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%v\r\n", ev)
		if _, ok := ev.(input.Interrupt); ok {
			return nil
		}
	}
}
