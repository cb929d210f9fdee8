// seehuhn.de/go/fontsubset - reduce fonts to the glyphs needed for a text
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/runenames"

	"seehuhn.de/go/fontsubset/inspect"
	"seehuhn.de/go/fontsubset/repertoire"
	"seehuhn.de/go/fontsubset/task"
)

func (a *app) inspectCommand() *cobra.Command {
	var (
		asJSON  bool
		missing string
	)
	cmd := &cobra.Command{
		Use:   "inspect [flags] <font>",
		Short: "show the metadata of a font",
		Example: `  font-subset inspect Roboto.ttf
  font-subset inspect --missing "Grüße, Łódź" Roboto.woff2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileName := args[0]
			blob, err := os.ReadFile(fileName)
			if err != nil {
				return err
			}
			md, err := inspect.InspectFile(blob, filepath.Base(fileName))
			if err != nil {
				return task.Classify(err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(md)
			}
			printMetadata(out, md)
			if missing != "" {
				printMissing(out, md, repertoire.FromString(missing))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "write the metadata as JSON")
	cmd.Flags().StringVar(&missing, "missing", "", "list the characters of `text` which the font lacks")
	return cmd
}

func printMetadata(w io.Writer, md *inspect.Metadata) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "family:\t%s\n", md.Family)
	fmt.Fprintf(tw, "subfamily:\t%s\n", md.Subfamily)
	fmt.Fprintf(tw, "version:\t%s\n", md.Version)
	fmt.Fprintf(tw, "container:\t%s\n", md.Container)
	if md.NumFaces > 1 {
		fmt.Fprintf(tw, "faces:\t%d (only the first is used)\n", md.NumFaces)
	}
	fmt.Fprintf(tw, "glyphs:\t%d\n", md.GlyphCount)

	var covered int
	ranges := make([]string, len(md.Ranges))
	for i, r := range md.Ranges {
		covered += int(r.Last-r.First) + 1
		ranges[i] = r.String()
	}
	fmt.Fprintf(tw, "characters:\t%d in %d ranges\n", covered, len(md.Ranges))
	tw.Flush()

	if len(ranges) > 0 {
		fmt.Fprintln(w, "\nranges:")
		for i := 0; i < len(ranges); i += 6 {
			end := min(i+6, len(ranges))
			fmt.Fprintln(w, "  "+strings.Join(ranges[i:end], " "))
		}
	}

	if md.IsVariable {
		fmt.Fprintln(w, "\naxes:")
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  tag\tname\tmin\tdefault\tmax")
		for _, ax := range md.Axes {
			fmt.Fprintf(tw, "  %s\t%s\t%g\t%g\t%g\n", ax.Tag, ax.Name, ax.Min, ax.Default, ax.Max)
		}
		tw.Flush()
	}
}

func printMissing(w io.Writer, md *inspect.Metadata, rep *repertoire.Repertoire) {
	var lacking []rune
	for _, r := range rep.Runes() {
		if !md.Covers(r) {
			lacking = append(lacking, r)
		}
	}
	if len(lacking) == 0 {
		fmt.Fprintln(w, "\nall characters are covered")
		return
	}
	fmt.Fprintf(w, "\n%d missing characters:\n", len(lacking))
	for _, r := range lacking {
		name := runenames.Name(r)
		if name == "" {
			name = "<unnamed>"
		}
		fmt.Fprintf(w, "  U+%04X  %c  %s\n", r, r, name)
	}
}
