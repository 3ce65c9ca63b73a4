package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorAccent  = lipgloss.Color("33")  // Blue
	ColorHeading = lipgloss.Color("141") // Violet
	ColorSuccess = lipgloss.Color("78")  // Green
	ColorWarning = lipgloss.Color("214") // Orange
	ColorError   = lipgloss.Color("203") // Red
	ColorMuted   = lipgloss.Color("244") // Gray
	ColorCite    = lipgloss.Color("220") // Gold
)

// Text styles
var (
	Bold      = lipgloss.NewStyle().Bold(true)
	Dim       = lipgloss.NewStyle().Foreground(ColorMuted)
	Highlight = lipgloss.NewStyle().Foreground(ColorCite)
	Header    = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true).Underline(true)

	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)
	Error   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
)

// Document and passage styles
var (
	Filename = lipgloss.NewStyle().Foreground(ColorAccent)
	ChunkRef = lipgloss.NewStyle().Foreground(ColorMuted).Italic(true)
	Score    = lipgloss.NewStyle().Foreground(ColorSuccess)

	// Passage text is wrapped and indented under its source line.
	ResultContent = lipgloss.NewStyle().
			PaddingLeft(4).
			Width(96)
	ContextText = ResultContent.
			Foreground(ColorMuted)

	SectionTitle = lipgloss.NewStyle().
			Foreground(ColorHeading).
			Bold(true).
			MarginTop(1)
	Divider  = lipgloss.NewStyle().Foreground(ColorMuted)
	Citation = lipgloss.NewStyle().Foreground(ColorCite).Bold(true)
)

// HorizontalRule returns a styled horizontal divider.
func HorizontalRule(width int) string {
	return Divider.Render(strings.Repeat("─", width))
}

// FormatSource formats a document name with the chunk position.
func FormatSource(filename string, chunkIndex int) string {
	return Filename.Render(filename) + ChunkRef.Render(fmt.Sprintf(" chunk %d", chunkIndex))
}

// FormatScore formats a similarity score as a percentage.
func FormatScore(score float64) string {
	return Score.Render(fmt.Sprintf("(%.1f%% match)", score*100))
}

// FormatCitation renders the marker an answer uses to cite source n.
func FormatCitation(n int) string {
	return Citation.Render(fmt.Sprintf("[Source %d]", n))
}
