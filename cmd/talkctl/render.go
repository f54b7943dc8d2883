package main

import (
	"fmt"
	"io"
	"strings"

	"zhutalk/internal/client"
	"zhutalk/internal/thread"

	"github.com/charmbracelet/lipgloss"
)

var (
	authorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	metaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	tombstoneStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
)

const indentWidth = 2

// renderThread draws the loaded forest, one block per comment. Indentation
// stops growing at maxDepth; the real depth is still printed.
func renderThread(w io.Writer, st client.State, maxDepth int) {
	if len(st.Roots) == 0 {
		fmt.Fprintln(w, metaStyle.Render("暂无评论"))
		return
	}
	for _, row := range client.Flatten(st.Roots) {
		renderRow(w, row, maxDepth)
	}
	footer := fmt.Sprintf("%d/%d root comments", len(st.Roots), st.TotalCount)
	if st.HasMore {
		footer += " · more available (--all)"
	}
	fmt.Fprintln(w, footerStyle.Render(footer))
}

func renderRow(w io.Writer, row client.Row, maxDepth int) {
	n := row.Node
	pad := lipgloss.NewStyle().PaddingLeft(thread.DisplayDepth(row.Depth, maxDepth) * indentWidth)

	meta := fmt.Sprintf("%s  depth %d", n.ID, row.Depth)
	if n.Edited {
		meta += " · edited"
	}
	header := authorStyle.Render(strings.TrimSpace(n.Author.Avatar+" "+n.Author.Username)) + " " + metaStyle.Render(meta)

	var body string
	if n.IsTombstone() {
		body = tombstoneStyle.Render(thread.TombstoneText)
	} else {
		body = n.Content
	}
	fmt.Fprintln(w, pad.Render(header))
	fmt.Fprintln(w, pad.Render(body))
}
