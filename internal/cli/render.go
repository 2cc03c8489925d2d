// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jeranaias/presence-chat/internal/chatapi"
	"github.com/jeranaias/presence-chat/internal/model"
	"github.com/jeranaias/presence-chat/internal/telemetry"
	"github.com/jeranaias/presence-chat/internal/util"
)

// =============================================================================
// MARKDOWN
// =============================================================================

// Renderer formats replies for the terminal. With markdown disabled it
// passes text through unchanged, which keeps piped output plain.
type Renderer struct {
	width int
	md    *glamour.TermRenderer
}

// NewRenderer creates a renderer wrapping at width columns.
func NewRenderer(width int, markdown bool) *Renderer {
	r := &Renderer{width: width}
	if !markdown {
		return r
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		r.md = md
	}
	return r
}

// Markdown reports whether replies are rendered as markdown.
func (r *Renderer) Markdown() bool {
	return r.md != nil
}

// Text renders reply text. Rendering errors fall back to the raw text.
func (r *Renderer) Text(text string) string {
	if r.md == nil {
		return text
	}
	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// Sources renders the reference list under a reply.
func (r *Renderer) Sources(sources []model.Source) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(DimStyle.Render("Sources :"))
	for _, s := range sources {
		line := s.Title
		if s.Category != "" {
			line += " (" + s.Category + ")"
		}
		if s.Relevance > 0 {
			line += fmt.Sprintf(" %.0f%%", s.Relevance*100)
		}
		b.WriteString("\n")
		b.WriteString(DimStyle.Render("  • " + util.TruncateWidth(line, r.width-4)))
	}
	return b.String()
}

// Suggestions renders numbered follow-up choices, or "" when hidden.
func (r *Renderer) Suggestions(s *model.Suggestions) string {
	if !s.Visible() {
		return ""
	}
	var b strings.Builder
	b.WriteString(DimStyle.Render("Suggestions :"))
	for i, item := range s.Items {
		b.WriteString(fmt.Sprintf("\n  %s %s", ChoiceStyle.Render(fmt.Sprintf("[%d]", i+1)), item))
	}
	b.WriteString("\n")
	b.WriteString(DimStyle.Render("  /pick N pour choisir"))
	return b.String()
}

// Reply renders a finished assistant message with its metadata.
func (r *Renderer) Reply(m model.Message) string {
	text := r.Text(m.Text)
	if m.IsErrored() {
		text = ErrorStyle.Render(m.Text)
	}
	if meta := r.Meta(m); meta != "" {
		return text + "\n\n" + meta
	}
	return text
}

// Meta renders the sources and suggestions of a message, or "".
func (r *Renderer) Meta(m model.Message) string {
	var parts []string
	if s := r.Sources(m.Sources); s != "" {
		parts = append(parts, s)
	}
	if s := r.Suggestions(m.Suggestions); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}

// =============================================================================
// STATUS AND HISTORY
// =============================================================================

// WidgetTitle returns the display name of a widget.
func WidgetTitle(name string) string {
	switch name {
	case "ntic2":
		return "NTIC2"
	case "smartpresence":
		return "Smart Presence"
	}
	return cases.Title(language.French).String(name)
}

// Status renders the capability descriptor.
func (r *Renderer) Status(widget, baseURL string, caps chatapi.Capabilities) string {
	lines := []string{
		TitleStyle.Render("Statut du service") + " " + RenderStatus(caps.Connected),
		RenderSeparator(30),
		RenderField("Widget", WidgetTitle(widget)),
		RenderField("Serveur", baseURL),
		RenderField("Documents", fmt.Sprintf("%d", caps.Documents)),
	}
	if caps.Status != "" {
		lines = append(lines, RenderField("État", caps.Status))
	}
	if len(caps.Providers) > 0 {
		lines = append(lines, RenderField("Fournisseurs", strings.Join(caps.Providers, ", ")))
	}
	if caps.Message != "" {
		lines = append(lines, RenderField("Message", util.TruncateWidth(caps.Message, r.width-14)))
	}
	if !caps.CheckedAt.IsZero() {
		lines = append(lines, RenderField("Vérifié à", caps.CheckedAt.Format("15:04:05")))
	}
	return strings.Join(lines, "\n")
}

// History renders the whole conversation compactly.
func (r *Renderer) History(msgs []model.Message) string {
	if len(msgs) == 0 {
		return DimStyle.Render("Aucun message.")
	}
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		label := UserStyle.Render(m.Role.DisplayName())
		if m.Role == model.RoleAssistant {
			label = AssistantStyle.Render(m.Role.DisplayName())
		}
		b.WriteString(fmt.Sprintf("%s %s %s", DimStyle.Render(m.Timestamp.Format("15:04")), label, m.Preview(200)))
		if m.IsErrored() {
			b.WriteString(" " + ErrorStyle.Render("(erreur)"))
		}
	}
	return b.String()
}

// Stats renders the current run and recent trends.
func (r *Renderer) Stats(run *telemetry.Run, trends *telemetry.Trends) string {
	lines := []string{
		TitleStyle.Render("Statistiques"),
		RenderSeparator(30),
		RenderField("Échanges", fmt.Sprintf("%d", run.Turns())),
		RenderField("Réussis", fmt.Sprintf("%d (%.0f%%)", run.Completed, run.SuccessRate()*100)),
		RenderField("Erreurs", fmt.Sprintf("%d", run.Errored)),
		RenderField("Interrompus", fmt.Sprintf("%d", run.Interrupted)),
		RenderField("Secours", fmt.Sprintf("%d", run.Fallbacks)),
		RenderField("Durée moy.", run.AverageDuration().Round(10 * time.Millisecond).String()),
	}
	if run.DroppedFrames > 0 {
		lines = append(lines, RenderField("Trames rejet.", fmt.Sprintf("%d", run.DroppedFrames)))
	}
	if trends != nil {
		lines = append(lines, "",
			DimStyle.Render(fmt.Sprintf("%d derniers jours : %d échanges, %d réussis", trends.Days, trends.Turns, trends.Completed)))
	}
	return strings.Join(lines, "\n")
}
