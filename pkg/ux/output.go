// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal styling shared by the viewer and the
// headless commands.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	ColorAccent  = lipgloss.Color("#20B9B4")
	ColorBright  = lipgloss.Color("#2CD7C7")
	ColorBorder  = lipgloss.Color("#16858E")
	ColorSlate   = lipgloss.Color("#2C4A54")
	ColorText    = lipgloss.Color("#E6EDF3")
	ColorEdge    = lipgloss.Color("#666666")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorSuccess = lipgloss.Color("#2CD7C7")

	// Severity colors used for graph nodes and issue rows.
	ColorSeverityError   = lipgloss.Color("#F44336")
	ColorSeverityWarning = lipgloss.Color("#FF9800")
	ColorSeverityInfo    = lipgloss.Color("#2196F3")
	ColorSeverityOK      = lipgloss.Color("#4CAF50")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style

	Pane       lipgloss.Style
	ActivePane lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorAccent),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),

	Pane: lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(ColorSlate),
	ActivePane: lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(ColorAccent),
}

// Icon provides status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconInfo    Icon = "ℹ"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconFolder  Icon = "▸"
	IconFile    Icon = "·"
)

// Render returns the icon with its semantic color.
func (i Icon) Render() string {
	if GetMode() != ModeRich {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

var (
	stdout   io.Writer = os.Stdout
	stderr   io.Writer = os.Stderr
	outputMu sync.Mutex
)

// SetOutput redirects headless output. Passing nil restores the
// process streams.
func SetOutput(out, errOut io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	stdout, stderr = out, errOut
}

func writers() (io.Writer, io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	return stdout, stderr
}

// Title prints a styled title. Suppressed in machine mode.
func Title(text string) {
	out, _ := writers()
	switch GetMode() {
	case ModeMachine:
		return
	case ModePlain:
		fmt.Fprintln(out, text)
	default:
		fmt.Fprintln(out, Styles.Title.Render(text))
	}
}

// Success prints a success line.
func Success(text string) {
	out, _ := writers()
	switch GetMode() {
	case ModeMachine:
		fmt.Fprintf(out, "OK: %s\n", text)
	case ModePlain:
		fmt.Fprintf(out, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning line to stderr.
func Warning(text string) {
	_, errOut := writers()
	switch GetMode() {
	case ModeMachine:
		fmt.Fprintf(errOut, "WARN: %s\n", text)
	case ModePlain:
		fmt.Fprintf(errOut, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(errOut, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error line to stderr.
func Error(text string) {
	_, errOut := writers()
	switch GetMode() {
	case ModeMachine:
		fmt.Fprintf(errOut, "ERROR: %s\n", text)
	case ModePlain:
		fmt.Fprintf(errOut, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(errOut, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational line.
func Info(text string) {
	out, _ := writers()
	if GetMode() == ModeMachine {
		fmt.Fprintln(out, text)
		return
	}
	fmt.Fprintf(out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Box prints a titled block. Machine mode prints "title: content".
func Box(title, content string) {
	out, _ := writers()
	switch GetMode() {
	case ModeMachine:
		fmt.Fprintf(out, "%s: %s\n", title, strings.ReplaceAll(content, "\n", "; "))
	case ModePlain:
		fmt.Fprintf(out, "%s\n%s\n", title, content)
	default:
		fmt.Fprintln(out, Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
	}
}

// ProgressBar renders a percentage bar of the given width.
//
// Percent is clamped to [0,100]. Machine mode returns "NN%".
func ProgressBar(percent int, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if GetMode() == ModeMachine {
		return fmt.Sprintf("%d%%", percent)
	}
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if GetMode() == ModeRich {
		bar = Styles.Success.Render(strings.Repeat("█", filled)) +
			Styles.Muted.Render(strings.Repeat("░", width-filled))
	}
	return fmt.Sprintf("%s %3d%%", bar, percent)
}
