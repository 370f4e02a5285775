package router

import (
	"sort"
	"strings"

	kit "drumbot/internal/transport"
)

// sanitizeCommand maps a name to Telegram's command alphabet [a-z0-9_]{1,32}.
func sanitizeCommand(s string) string {
	s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "/")))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == ' ':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

// menuCommands lists visible commands for the Telegram command menu, sorted.
func menuCommands(cmds []Command) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(cmds))
	seen := map[string]bool{}
	for _, c := range cmds {
		name := sanitizeCommand(c.Name)
		if c.Hidden || name == "" || seen[name] {
			continue
		}
		seen[name] = true
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = name
		}
		if r := []rune(desc); len(r) > 256 {
			desc = string(r[:256])
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	if len(out) > 100 {
		out = out[:100]
	}
	return out
}

// HelpText lists the visible commands, one per line.
func HelpText(cmds []Command) string {
	var b strings.Builder
	b.WriteString("Команды бота:\n")
	for _, c := range cmds {
		if c.Hidden {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		b.WriteString(usage)
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(c.Description)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
