// Package sandboxtools implements the concrete Read/Write/Edit/Glob/Grep/Bash
// executors the agent runtime dispatches tool-use blocks to (A4). Callers
// are expected to have already run the tool-use block through
// hooks.Pipeline.PreTool and only invoke Execute when the decision allowed
// it; this package performs the actual filesystem/process I/O and nothing
// else, keeping policy enforcement and side effects in separate packages
// the way spec.md §4.1/§4.4 separate C1 from the runtime's execution stage.
//
// Grounded on other_examples' conduit ExecutionEngine.executeSingle shape
// (one executor type, one method per tool, structured ExecutionResult),
// adapted to this gateway's concrete builtin tool set instead of a
// pluggable ToolRegistry.
package sandboxtools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"goa.design/agentgateway/internal/toolerrors"
	"goa.design/agentgateway/internal/tools"
)

// Executor runs builtin tool invocations against a sandbox workspace
// rooted at Root. It performs no policy enforcement; the sandbox Policy
// must already have allowed the invocation.
type Executor struct {
	Root        string
	BashTimeout time.Duration
}

// NewExecutor returns an Executor rooted at root, defaulting BashTimeout to
// 30s when not overridden.
func NewExecutor(root string) *Executor {
	return &Executor{Root: root, BashTimeout: 30 * time.Second}
}

// Execute dispatches to the concrete tool implementation by name. Task is
// not handled here: spawning a sub-agent is the runtime's concern, tracked
// by the event translator (C5) as an agent_spawn/agent_complete pair rather
// than a local side effect.
func (e *Executor) Execute(ctx context.Context, name tools.Name, input map[string]any) (string, error) {
	switch name {
	case tools.Read:
		return e.read(input)
	case tools.Write:
		return e.write(input)
	case tools.Edit:
		return e.edit(input)
	case tools.Glob:
		return e.glob(input)
	case tools.Grep:
		return e.grep(input)
	case tools.Bash:
		return e.bash(ctx, input)
	default:
		return "", toolerrors.New(fmt.Sprintf("no local executor for tool %q", name))
	}
}

func (e *Executor) resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Clean(filepath.Join(e.Root, rel))
}

func (e *Executor) read(input map[string]any) (string, error) {
	path, _ := input["file_path"].(string)
	if path == "" {
		return "", toolerrors.New("file_path is required")
	}
	data, err := os.ReadFile(e.resolve(path))
	if err != nil {
		return "", toolerrors.NewWithCause("read failed", err)
	}
	return string(data), nil
}

func (e *Executor) write(input map[string]any) (string, error) {
	path, _ := input["file_path"].(string)
	content, _ := input["content"].(string)
	if path == "" {
		return "", toolerrors.New("file_path is required")
	}
	abs := e.resolve(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", toolerrors.NewWithCause("write failed: create parent directory", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", toolerrors.NewWithCause("write failed", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

func (e *Executor) edit(input map[string]any) (string, error) {
	path, _ := input["file_path"].(string)
	oldStr, _ := input["old_string"].(string)
	newStr, _ := input["new_string"].(string)
	if path == "" || oldStr == "" {
		return "", toolerrors.New("file_path and old_string are required")
	}
	abs := e.resolve(path)
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", toolerrors.NewWithCause("edit failed: read", err)
	}
	original := string(data)
	count := strings.Count(original, oldStr)
	if count == 0 {
		return "", toolerrors.New("old_string not found in file")
	}
	if count > 1 {
		return "", toolerrors.New("old_string is not unique in file")
	}
	updated := strings.Replace(original, oldStr, newStr, 1)
	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
		return "", toolerrors.NewWithCause("edit failed: write", err)
	}
	return fmt.Sprintf("applied edit to %s", path), nil
}

func (e *Executor) glob(input map[string]any) (string, error) {
	pattern, _ := input["pattern"].(string)
	if pattern == "" {
		return "", toolerrors.New("pattern is required")
	}
	matches, err := filepath.Glob(e.resolve(pattern))
	if err != nil {
		return "", toolerrors.NewWithCause("glob failed", err)
	}
	return strings.Join(matches, "\n"), nil
}

func (e *Executor) grep(input map[string]any) (string, error) {
	pattern, _ := input["pattern"].(string)
	searchPath, _ := input["path"].(string)
	if pattern == "" {
		return "", toolerrors.New("pattern is required")
	}
	root := e.Root
	if searchPath != "" {
		root = e.resolve(searchPath)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", toolerrors.NewWithCause("grep: invalid pattern", err)
	}
	var matches []string
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return nil
		}
		data, readErr := os.ReadFile(p)
		if readErr != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				rel, _ := filepath.Rel(e.Root, p)
				matches = append(matches, fmt.Sprintf("%s:%d:%s", rel, i+1, line))
			}
		}
		return nil
	})
	if err != nil {
		return "", toolerrors.NewWithCause("grep failed", err)
	}
	return strings.Join(matches, "\n"), nil
}

func (e *Executor) bash(ctx context.Context, input map[string]any) (string, error) {
	command, _ := input["command"].(string)
	if command == "" {
		return "", toolerrors.New("command is required")
	}
	cctx, cancel := context.WithTimeout(ctx, e.BashTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "/bin/sh", "-c", command)
	cmd.Dir = e.Root
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), toolerrors.NewWithCause("command exited non-zero", err)
	}
	return out.String(), nil
}
