package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/cwpctl/internal/morse"
	"github.com/spf13/cobra"
)

func encodeCmd() *cobra.Command {
	var dots bool
	cmd := &cobra.Command{
		Use:   "encode <text>...",
		Short: "Print the morse bits of text",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			bits := morse.Encode(sanitize(strings.Join(args, " ")))
			if dots {
				fmt.Fprintln(cmd.OutOrStdout(), toDots(bits))
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), bits.String())
		},
	}
	cmd.Flags().BoolVar(&dots, "dots", false, "print dots and dashes instead of bits")
	return cmd
}

func decodeCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "decode <bits>",
		Short: "Decode a 0/1 morse bit string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := strings.TrimSpace(args[0])
			if strings.Trim(in, "01") != "" {
				return fmt.Errorf("decode: bits must only hold 0 and 1")
			}
			text := morse.Decode(morse.NewBitString(in).Append(morse.CharBreak))
			if !raw {
				text = morse.Render(text)
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "keep control characters in the output")
	return cmd
}

// sanitize lower-cases text and drops characters morse cannot carry.
func sanitize(text string) string {
	var out strings.Builder
	for _, r := range strings.ToLower(text) {
		if morse.Allowed(r) {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// toDots renders bits as dots and dashes, one space between characters and
// a slash between words.
func toDots(bits morse.BitString) string {
	var out strings.Builder
	for wi, word := range bits.Split(morse.WordBreak) {
		if wi > 0 {
			out.WriteString(" / ")
		}
		for ci, char := range word.Split(morse.CharBreak) {
			if ci > 0 {
				out.WriteByte(' ')
			}
			for _, mark := range strings.Split(char.String(), "0") {
				switch len(mark) {
				case 0:
				case 1:
					out.WriteByte('.')
				default:
					out.WriteByte('-')
				}
			}
		}
	}
	return out.String()
}
