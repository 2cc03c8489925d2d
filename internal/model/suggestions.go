// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "fmt"

// Suggestion types understood by the client. Anything else is ignored.
const (
	SuggestGroups      = "groups"
	SuggestDaysByGroup = "days_by_group"
	SuggestDays        = "days"
	SuggestGroupsByDay = "groups_by_day"
)

// Suggestions are follow-up choices attached to an end-of-turn event.
type Suggestions struct {
	Type  string   `json:"type,omitempty"`
	Items []string `json:"items"`
	Group string   `json:"group,omitempty"`
	Day   string   `json:"day,omitempty"`
}

// known reports whether the suggestion type can be rendered.
func (s *Suggestions) known() bool {
	switch s.Type {
	case "", SuggestGroups, SuggestDaysByGroup, SuggestDays, SuggestGroupsByDay:
		return true
	}
	return false
}

// Visible reports whether there is anything to offer the user.
func (s *Suggestions) Visible() bool {
	return s != nil && len(s.Items) > 0 && s.known()
}

// FollowUp builds the question sent when the user picks item.
// It returns false for unknown suggestion types.
func (s *Suggestions) FollowUp(item string) (string, bool) {
	if s == nil || !s.known() {
		return "", false
	}
	switch s.Type {
	case SuggestGroups:
		return fmt.Sprintf("Quels sont les jours de cours pour le groupe %s ?", item), true
	case SuggestDaysByGroup:
		return fmt.Sprintf("Quel est l'emploi du temps du groupe %s le %s ?", s.Group, item), true
	case SuggestDays:
		return fmt.Sprintf("Quel est l'emploi du temps du %s ?", item), true
	case SuggestGroupsByDay:
		return fmt.Sprintf("Quel est l'emploi du temps du groupe %s le %s ?", item, s.Day), true
	}
	return item, true
}
