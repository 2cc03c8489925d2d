// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"strings"

	"github.com/jeranaias/presence-chat/internal/model"
	"github.com/jeranaias/presence-chat/internal/protocol"
)

// =============================================================================
// SCRIPTED ANSWERS
// =============================================================================

type answer struct {
	keywords    []string
	reply       string
	sources     []model.Source
	suggestions *model.Suggestions
}

var answers = []answer{
	{
		keywords: []string{"emploi", "horaire", "planning"},
		reply:    "Les emplois du temps sont publiés chaque lundi. Choisissez votre groupe :",
		sources: []model.Source{
			{Title: "Emplois du temps S2", Category: "planning", Relevance: 0.92},
		},
		suggestions: &model.Suggestions{
			Type:  model.SuggestGroups,
			Items: []string{"DEV101", "DEV102", "ID101"},
		},
	},
	{
		keywords: []string{"absence", "justif"},
		reply:    "Une absence doit être justifiée sous 48 heures depuis l'onglet **Justifications**, avec un document PDF ou une photo.",
		sources: []model.Source{
			{Title: "Règlement intérieur - Absences", Category: "reglement", Relevance: 0.88},
		},
	},
	{
		keywords: []string{"présence", "presence", "check-in", "pointage"},
		reply:    "Le check-in se fait par reconnaissance faciale ou par QR code à l'entrée de la salle, dans les 15 minutes qui suivent le début du cours.",
		sources: []model.Source{
			{Title: "Guide Smart Presence", Category: "guide", Relevance: 0.95},
			{Title: "FAQ QR code", Category: "faq", Relevance: 0.71},
		},
	},
	{
		keywords: []string{"efm", "examen"},
		reply:    "Les EFM régionaux ont lieu en juin. Le calendrier détaillé par filière est affiché au secrétariat.",
		sources: []model.Source{
			{Title: "Calendrier EFM", Category: "examens", Relevance: 0.84},
		},
		suggestions: &model.Suggestions{
			Type:  model.SuggestDays,
			Items: []string{"Lundi", "Mardi", "Mercredi"},
		},
	},
}

const defaultReply = "Je suis l'assistant de développement. Posez une question sur les présences, les absences, les emplois du temps ou les examens."

// lookup picks the scripted answer for a question.
func lookup(question string) protocol.Result {
	q := strings.ToLower(question)
	for _, a := range answers {
		for _, kw := range a.keywords {
			if strings.Contains(q, kw) {
				res := protocol.Result{
					Reply:    a.reply,
					Sources:  append([]model.Source(nil), a.sources...),
					RAGUsed:  true,
					Language: "fr",
				}
				if a.suggestions != nil {
					s := *a.suggestions
					s.Items = append([]string(nil), a.suggestions.Items...)
					res.Suggestions = &s
				}
				return res
			}
		}
	}
	return protocol.Result{Reply: defaultReply, Sources: []model.Source{}, Language: "fr"}
}

// chunks splits text into word-sized fragments that concatenate back to
// the original.
func chunks(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == ' ' && i > start {
			out = append(out, text[start:i])
			start = i
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
