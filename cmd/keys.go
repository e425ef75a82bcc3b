package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/vzpilot/internal/keyboard"
	"github.com/xkilldash9x/vzpilot/internal/qmp"
)

// keyStroke is one character of the input and the key that types it.
type keyStroke struct {
	Char  string       `json:"char"`
	Key   keyboard.Key `json:"key"`
	QCode string       `json:"qcode"`
}

func newKeysCmd() *cobra.Command {
	var asJSON bool

	keysCmd := &cobra.Command{
		Use:   "keys <text>",
		Short: "Show the key presses that would type text on the guest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strokes, unmapped := keyStrokes(args[0])
			out := cmd.OutOrStdout()

			if asJSON {
				enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(strokes); err != nil {
					return fmt.Errorf("failed to encode key strokes: %w", err)
				}
			} else if err := printKeyStrokes(out, strokes); err != nil {
				return err
			}

			if len(unmapped) > 0 {
				quoted := make([]string, len(unmapped))
				for i, r := range unmapped {
					quoted[i] = strconv.QuoteRune(r)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d unmapped character(s): %s\n", len(unmapped), strings.Join(quoted, " "))
			}
			return nil
		},
	}
	keysCmd.Flags().BoolVar(&asJSON, "json", false, "Print the key strokes as JSON.")
	return keysCmd
}

// keyStrokes resolves every character of text. Characters without a key are
// returned separately, in order.
func keyStrokes(text string) ([]keyStroke, []rune) {
	strokes := make([]keyStroke, 0, len(text))
	var unmapped []rune
	for _, r := range text {
		keys := keyboard.KeysFor(r)
		if len(keys) == 0 {
			unmapped = append(unmapped, r)
			continue
		}
		for _, k := range keys {
			strokes = append(strokes, keyStroke{Char: string(r), Key: k, QCode: qcodeChord(k)})
		}
	}
	return strokes, unmapped
}

// qcodeChord renders k as QEMU key names joined with "-", modifiers first.
func qcodeChord(k keyboard.Key) string {
	var parts []string
	for _, m := range k.Modifiers.List() {
		mk, ok := keyboard.ModifierKey(m)
		if !ok {
			continue
		}
		if q, ok := qmp.QCode(mk.Code); ok {
			parts = append(parts, q)
		}
	}
	q, ok := qmp.QCode(k.Code)
	if !ok {
		q = "?"
	}
	return strings.Join(append(parts, q), "-")
}

func printKeyStrokes(out io.Writer, strokes []keyStroke) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAR\tKEY\tQCODE")
	for _, s := range strokes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", strconv.Quote(s.Char), s.Key, s.QCode)
	}
	return tw.Flush()
}
