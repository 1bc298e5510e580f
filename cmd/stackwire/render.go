package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/internal/deploy"
	"github.com/schedulegen/stackwire-go/internal/differ"
	"github.com/schedulegen/stackwire-go/internal/state"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	createStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	deleteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	updateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	replaceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

func actionMarker(a deploy.Action) string {
	switch a {
	case deploy.ActionCreate:
		return createStyle.Render("+")
	case deploy.ActionDelete:
		return deleteStyle.Render("-")
	case deploy.ActionUpdate:
		return updateStyle.Render("~")
	case deploy.ActionReplace:
		return replaceStyle.Render("±")
	}
	return faintStyle.Render("=")
}

func severityStyle(severity string) lipgloss.Style {
	switch severity {
	case "high":
		return deleteStyle
	case "medium":
		return updateStyle
	}
	return faintStyle
}

func renderPlan(w io.Writer, p *deploy.Plan) {
	fmt.Fprintln(w, headerStyle.Render("Stack "+p.Stack))
	for _, c := range p.Changes {
		line := fmt.Sprintf("%s %-20s %-26s %s", actionMarker(c.Action), c.Resource, c.Type, c.Action)
		if c.Reason != "" {
			line += faintStyle.Render("  " + c.Reason)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, faintStyle.Render(p.Summary()))
}

func renderDiff(w io.Writer, r *differ.Result) {
	if r.Summary.Total == 0 && len(r.Outputs) == 0 {
		fmt.Fprintln(w, faintStyle.Render("templates are identical"))
		return
	}
	for _, e := range r.Diff.Added {
		fmt.Fprintln(w, createStyle.Render(fmt.Sprintf("+ %s (%s)", e.Resource, e.Type)))
	}
	for _, e := range r.Diff.Removed {
		fmt.Fprintln(w, deleteStyle.Render(fmt.Sprintf("- %s (%s)", e.Resource, e.Type)))
	}
	for _, e := range r.Diff.Modified {
		style, marker := updateStyle, "~"
		if e.Action == stackwire.DiffReplace {
			style, marker = replaceStyle, "±"
		}
		fmt.Fprintln(w, style.Render(fmt.Sprintf("%s %s (%s)", marker, e.Resource, e.Type)))
		for _, c := range e.Changes {
			fmt.Fprintln(w, faintStyle.Render("    "+c))
		}
	}
	for _, o := range r.Outputs {
		fmt.Fprintln(w, updateStyle.Render("~ output "+o))
	}
	fmt.Fprintln(w, faintStyle.Render(fmt.Sprintf("%d added, %d removed, %d modified (%d replaced)",
		r.Summary.Added, r.Summary.Removed, r.Summary.Modified, r.Summary.Replaced)))
}

func renderOutputs(w io.Writer, outputs map[string]string) {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("OUTPUT", "VALUE")
	for _, k := range keys {
		t.Row(k, outputs[k])
	}
	fmt.Fprintln(w, t.String())
}

func renderRecords(w io.Writer, records []*state.StackRecord) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STACK", "BACKEND", "STATUS", "RESOURCES", "UPDATED")
	for _, r := range records {
		t.Row(r.Name, r.Backend, string(r.Status), strings.Join(r.ResourceIDs(), ", "), r.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w, t.String())
}
