package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/chatdoc/model"
)

var (
	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	InfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	IDStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	FaintStyle   = lipgloss.NewStyle().Faint(true)
)

// Output receives status lines. It is stderr so stdout stays clean for piping.
var Output io.Writer = os.Stderr

func printStyled(style lipgloss.Style, format string, a ...interface{}) {
	fmt.Fprintln(Output, style.Render(fmt.Sprintf(format, a...)))
}

func Header(format string, a ...interface{}) { printStyled(HeaderStyle, format, a...) }

func Info(format string, a ...interface{}) { printStyled(InfoStyle, format, a...) }

func Success(format string, a ...interface{}) { printStyled(SuccessStyle, format, a...) }

func Warning(format string, a ...interface{}) { printStyled(WarningStyle, format, a...) }

func Error(format string, a ...interface{}) { printStyled(ErrorStyle, format, a...) }

// RenderSummary formats a summary for the terminal.
func RenderSummary(s model.Summary) string {
	var b strings.Builder

	if s.Message != "" {
		b.WriteString(HeaderStyle.Render(s.Message))
		b.WriteString("\n")
	}

	sections := []struct {
		title string
		style lipgloss.Style
		ids   []string
	}{
		{"Changed:", SuccessStyle, s.Changed},
		{"Inserted:", SuccessStyle, s.Inserted},
		{"Skipped:", WarningStyle, s.Skipped},
	}
	hasContent := false
	for _, sec := range sections {
		if len(sec.ids) == 0 {
			continue
		}
		hasContent = true
		b.WriteString(sec.style.Render(sec.title))
		b.WriteString("\n")
		for _, id := range sec.ids {
			b.WriteString(fmt.Sprintf("  %s\n", IDStyle.Render(id)))
		}
	}

	if s.Model != "" {
		hasContent = true
		line := "Model: " + s.Model
		if s.Usage != "" {
			line += " (" + s.Usage + ")"
		}
		b.WriteString(FaintStyle.Render(line))
		b.WriteString("\n")
	}

	if !hasContent && s.Message == "" {
		b.WriteString(FaintStyle.Render("Nothing to do."))
		b.WriteString("\n")
	}
	return b.String()
}

// PrintSummary writes a summary to Output.
func PrintSummary(s model.Summary) {
	fmt.Fprint(Output, RenderSummary(s))
}
