// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// boolFlags never consume the following argument.
var boolFlags = map[string]bool{
	"json":    true,
	"offline": true,
	"verbose": true,
	"v":       true,
	"help":    true,
	"h":       true,
	"version": true,
}

// ArgParser splits raw arguments into flags and positionals.
//
// Supported forms:
//
//	--flag value
//	--flag=value
//	-f value
//	--bool
//
// A lone "--" ends flag parsing; everything after it is positional.
type ArgParser struct {
	flags      map[string]string
	bools      map[string]bool
	positional []string
}

// NewArgParser parses raw.
func NewArgParser(raw []string) *ArgParser {
	p := &ArgParser{
		flags: make(map[string]string),
		bools: make(map[string]bool),
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if arg == "--" {
			p.positional = append(p.positional, raw[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			p.positional = append(p.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if k, v, ok := strings.Cut(name, "="); ok {
			if boolFlags[k] {
				p.bools[k] = v == "true" || v == "1"
			} else {
				p.flags[k] = v
			}
			continue
		}
		if boolFlags[name] {
			p.bools[name] = true
			continue
		}
		if i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			p.flags[name] = raw[i+1]
			i++
			continue
		}
		p.bools[name] = true
	}
	return p
}

// Flag returns the first value set under any of names.
func (p *ArgParser) Flag(names ...string) string {
	for _, n := range names {
		if v, ok := p.flags[strings.TrimLeft(n, "-")]; ok {
			return v
		}
	}
	return ""
}

// BoolFlag reports whether any of names is set.
func (p *ArgParser) BoolFlag(names ...string) bool {
	for _, n := range names {
		if p.bools[strings.TrimLeft(n, "-")] {
			return true
		}
	}
	return false
}

// Positional returns the positional argument at index, or "".
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom returns the positional arguments from index on.
func (p *ArgParser) PositionalFrom(index int) []string {
	if index < 0 || index >= len(p.positional) {
		return nil
	}
	return p.positional[index:]
}
