package router

import "strings"

// Command is a parsed slash command.
type Command struct {
	Name string // without the leading slash
	Args string // remaining text, trimmed
}

// ParseCommand parses a leading slash command from message text. It returns
// nil if the text is not a command. A "@botname" suffix on the command is
// stripped (group chats address commands that way). Text on following lines
// is folded into Args.
func ParseCommand(text string) *Command {
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	firstLine, rest, _ := strings.Cut(text, "\n")

	name, args := firstLine, ""
	if i := strings.IndexAny(firstLine, " \t"); i >= 0 {
		name, args = firstLine[:i], firstLine[i+1:]
	}
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return nil
	}
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	if rest != "" {
		if args != "" {
			args += "\n" + rest
		} else {
			args = rest
		}
	}
	return &Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
}
