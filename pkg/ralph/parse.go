package ralph

import (
	"fmt"
	"strconv"
	"strings"
)

// Request is a parsed loop command: the task text plus an optional
// iteration cap.
type Request struct {
	Task          string
	MaxIterations int
}

// ParseRequest parses the argument string of a loop command. The form is
// "<task text> [--max-iterations N]"; the flag may appear anywhere and is
// removed from the task.
func ParseRequest(args string, defaultMax int) (Request, error) {
	req := Request{MaxIterations: defaultMax}
	fields := strings.Fields(args)
	var task []string
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case f == "--max-iterations":
			if i+1 >= len(fields) {
				return Request{}, fmt.Errorf("--max-iterations requires a value")
			}
			n, err := strconv.Atoi(fields[i+1])
			if err != nil || n < 1 {
				return Request{}, fmt.Errorf("invalid --max-iterations value %q", fields[i+1])
			}
			req.MaxIterations = n
			i++
		case strings.HasPrefix(f, "--max-iterations="):
			v := strings.TrimPrefix(f, "--max-iterations=")
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return Request{}, fmt.Errorf("invalid --max-iterations value %q", v)
			}
			req.MaxIterations = n
		default:
			task = append(task, f)
		}
	}
	req.Task = strings.Join(task, " ")
	if req.Task == "" {
		return Request{}, fmt.Errorf("loop command needs a task description")
	}
	return req, nil
}
