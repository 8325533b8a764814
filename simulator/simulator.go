package simulator

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/isdmx/sandgate/api"
)

// Language tags understood by the simulator.
const (
	LanguagePython = "python"
	LanguageNodeJS = "nodejs"
)

var (
	pythonPrint = regexp.MustCompile(`^\s*print\(\s*(?:"([^"]*)"|'([^']*)')\s*\)`)
	pythonRaise = regexp.MustCompile(`^\s*raise(?:\s+(\w+)\s*\(\s*(?:"([^"]*)"|'([^']*)')?\s*\))?`)

	nodeLog   = regexp.MustCompile(`^\s*console\.log\(\s*(?:"([^"]*)"|'([^']*)'|` + "`([^`]*)`" + `)\s*\)`)
	nodeError = regexp.MustCompile(`^\s*console\.error\(\s*(?:"([^"]*)"|'([^']*)')\s*\)`)
	nodeThrow = regexp.MustCompile(`^\s*throw\s+new\s+(\w+)\(\s*(?:"([^"]*)"|'([^']*)')?\s*\)`)
)

// Simulator derives stdout, stderr and an exit code from code text.
type Simulator struct {
	logger *zap.Logger
}

// New creates a Simulator.
func New(logger *zap.Logger) *Simulator {
	return &Simulator{logger: logger}
}

// Run simulates executing code under the given language tag and returns
// the complete execution outcome. Output preceding a failure point is
// preserved; everything after it is discarded.
func (s *Simulator) Run(code, language string) api.Execution {
	var stdout, stderr []string
	var execErr *api.ExecutionError

	for i, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isComment(trimmed, language) {
			continue
		}

		switch language {
		case LanguageNodeJS:
			if m := nodeLog.FindStringSubmatch(line); m != nil {
				stdout = append(stdout, firstMatch(m))
				continue
			}
			if m := nodeError.FindStringSubmatch(line); m != nil {
				stderr = append(stderr, firstMatch(m))
				continue
			}
			if m := nodeThrow.FindStringSubmatch(line); m != nil {
				execErr = nodeFailure(m, i+1)
			}
		default:
			// Python rules also cover unknown language tags.
			if m := pythonPrint.FindStringSubmatch(line); m != nil {
				stdout = append(stdout, firstMatch(m))
				continue
			}
			if m := pythonRaise.FindStringSubmatch(line); m != nil {
				execErr = pythonFailure(m, i+1)
			}
		}

		if execErr != nil {
			stderr = append(stderr, strings.Split(execErr.Traceback, "\n")...)
			break
		}
	}

	execution := api.Execution{
		Logs:           api.Logs{Stdout: stdout, Stderr: stderr},
		Error:          execErr,
		ExecutionCount: 1,
	}
	if execErr != nil {
		execution.ExitCode = 1
	} else if text := strings.Join(stdout, "\n"); text != "" {
		execution.Results = []api.Result{{IsMainResult: true, Text: text}}
	}

	s.logger.Debug("simulated execution",
		zap.String("language", language),
		zap.Int("stdout_lines", len(stdout)),
		zap.Int("stderr_lines", len(stderr)),
		zap.Int("exit_code", execution.ExitCode))

	return execution
}

// RunCommand simulates a terminal command and returns its output and
// exit code. Only a small command vocabulary is understood; anything
// else fails the way a missing binary would.
func (s *Simulator) RunCommand(command string) (string, int) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", 0
	}

	switch fields[0] {
	case "echo":
		out := strings.Join(fields[1:], " ")
		out = strings.Trim(out, `"'`)
		return out + "\n", 0
	case "pwd":
		return "/workspace\n", 0
	case "whoami":
		return "sandbox\n", 0
	case "uname":
		return "Linux\n", 0
	case "true":
		return "", 0
	case "false":
		return "", 1
	default:
		return fmt.Sprintf("sh: %s: command not found\n", fields[0]), 127
	}
}

func isComment(trimmed, language string) bool {
	if language == LanguageNodeJS {
		return strings.HasPrefix(trimmed, "//")
	}
	return strings.HasPrefix(trimmed, "#")
}

// firstMatch returns the first non-empty capture group.
func firstMatch(m []string) string {
	for _, group := range m[1:] {
		if group != "" {
			return group
		}
	}
	return ""
}

func pythonFailure(m []string, lineNo int) *api.ExecutionError {
	name := m[1]
	if name == "" {
		name = "Exception"
	}
	value := firstNonEmpty(m[2], m[3])
	last := name
	if value != "" {
		last = name + ": " + value
	}
	return &api.ExecutionError{
		Name:  name,
		Value: value,
		Traceback: strings.Join([]string{
			"Traceback (most recent call last):",
			fmt.Sprintf(`  File "main.py", line %d, in <module>`, lineNo),
			last,
		}, "\n"),
	}
}

func nodeFailure(m []string, lineNo int) *api.ExecutionError {
	name := m[1]
	if name == "" {
		name = "Error"
	}
	value := firstNonEmpty(m[2], m[3])
	return &api.ExecutionError{
		Name:  name,
		Value: value,
		Traceback: strings.Join([]string{
			fmt.Sprintf("%s: %s", name, value),
			fmt.Sprintf("    at <anonymous> (index.js:%d)", lineNo),
		}, "\n"),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
