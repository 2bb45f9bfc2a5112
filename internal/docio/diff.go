package docio

import (
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"
)

func writeDiff(w io.Writer, name string, before, after []byte, colored bool) error {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: name,
		ToFile:   name,
		Context:  2,
	})
	if err != nil {
		return err
	}
	if !colored {
		_, err := io.WriteString(w, text)
		return err
	}

	header := color.New(color.Bold)
	hunk := color.New(color.FgCyan)
	add := color.New(color.FgGreen)
	del := color.New(color.FgRed)
	for _, c := range []*color.Color{header, hunk, add, del} {
		c.EnableColor()
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		var c *color.Color
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			c = header
		case strings.HasPrefix(line, "@@"):
			c = hunk
		case strings.HasPrefix(line, "+"):
			c = add
		case strings.HasPrefix(line, "-"):
			c = del
		}
		if c == nil {
			if _, err := io.WriteString(w, line); err != nil {
				return err
			}
			continue
		}
		if _, err := c.Fprint(w, strings.TrimSuffix(line, "\n")); err != nil {
			return err
		}
		if strings.HasSuffix(line, "\n") {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
	}
	return nil
}
