// Package sandbox implements the gateway's sandbox policy engine: the pure,
// side-effect-free path/extension/command/content/rate-limit rule chain that
// gates every tool invocation before it reaches the agent runtime's
// execution stage.
//
// Grounded on agents/runtime/policy.Engine's Decide entry point and
// features/policy/basic's allow/block-set filtering idiom, generalized to
// the concrete rule chain this gateway enforces.
package sandbox

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"goa.design/agentgateway/internal/tools"
)

// DenyReason enumerates the reason codes attached to a deny Decision.
type DenyReason string

// Reason codes emitted by Check, matching the outbound hook_pre_tool
// payload's `message` field and the trace's sandbox_block event.
const (
	ReasonRateLimit      DenyReason = "rate_limit_exceeded"
	ReasonPathBlacklist  DenyReason = "path_blacklist"
	ReasonPathNotAllowed DenyReason = "path_not_in_whitelist"
	ReasonExtension      DenyReason = "extension_not_allowed"
	ReasonSensitiveData  DenyReason = "sensitive_content"
	ReasonDangerousCmd   DenyReason = "dangerous_command"
	ReasonPathTraversal  DenyReason = "path_traversal"
)

// Decision is the outcome of a Check call.
type Decision struct {
	Allow  bool
	Reason DenyReason
	// Message is a human-readable explanation surfaced in the trace and the
	// hook_pre_tool SSE frame.
	Message string
}

func allow() Decision { return Decision{Allow: true} }

func deny(reason DenyReason, message string) Decision {
	return Decision{Allow: false, Reason: reason, Message: message}
}

// Policy is the immutable sandbox configuration plus the mutable rate-limit
// windows it needs to enforce §4.1 rule 1. Policy itself performs no I/O and
// never resolves symlinks; path containment is purely lexical.
type Policy struct {
	cfg     Config
	sensRe  []*regexp.Regexp
	dangRe  []*regexp.Regexp
	limits  *limiterSet
}

// Config is the immutable, user-supplied sandbox configuration (spec.md §3
// SandboxPolicy).
type Config struct {
	// AllowedRoots is the ordered list of absolute directory prefixes under
	// which writes are permitted.
	AllowedRoots []string
	// BlockedPathGlobs are glob patterns matched against relative and
	// basename forms of a candidate path.
	BlockedPathGlobs []string
	// AllowedExtensions is an optional whitelist; empty means "no whitelist,
	// defer to BlockedExtensions".
	AllowedExtensions []string
	// BlockedExtensions is checked after AllowedExtensions.
	BlockedExtensions []string
	// DangerousCommandPatterns are regular expressions matched
	// case-insensitively against shell command strings.
	DangerousCommandPatterns []string
	// SensitiveContentPatterns are regular expressions matched against
	// Write payload contents.
	SensitiveContentPatterns []string
	// MaxOpsPerMin, MaxWritesPerMin, MaxShellPerMin bound the three rolling
	// 60-second rate-limit windows.
	MaxOpsPerMin    int
	MaxWritesPerMin int
	MaxShellPerMin  int
}

// sensitiveBasenames are the read-family blacklist entries from spec.md
// §4.1 rule 2.
var sensitiveBasenamePatterns = []string{
	".env", ".env.*", "*credentials*", "*secrets*", "*password*", "*token*",
}

// New builds a Policy from cfg, compiling its regex rule sets once. Clock is
// injected so wall-clock time is testable, per spec.md §4.1's final
// sentence.
func New(cfg Config, clock Clock) (*Policy, error) {
	sensRe, err := compileAll(cfg.SensitiveContentPatterns)
	if err != nil {
		return nil, err
	}
	dangRe, err := compileAll(cfg.DangerousCommandPatterns)
	if err != nil {
		return nil, err
	}
	return &Policy{
		cfg:    cfg,
		sensRe: sensRe,
		dangRe: dangRe,
		limits: newLimiterSet(clock, cfg.MaxOpsPerMin, cfg.MaxWritesPerMin, cfg.MaxShellPerMin),
	}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// Check is the policy's single entry point: check(tool_name, tool_input) in
// spec.md §4.1. Rules are evaluated in order; the first failure wins.
func (p *Policy) Check(name tools.Name, input map[string]any) Decision {
	// Rule 1: rate limits. Every tool counts against "all ops"; Write/Edit
	// additionally count against "writes"; Bash additionally counts against
	// "shell". Task counts only as an op (rule 5 allows it unconditionally
	// otherwise).
	if !p.limits.allowOp() {
		return deny(ReasonRateLimit, "rate limit exceeded: too many operations in the last 60s")
	}

	switch name {
	case tools.Read, tools.Glob, tools.Grep:
		return p.checkReadFamily(input)
	case tools.Write, tools.Edit:
		if !p.limits.allowWrite() {
			return deny(ReasonRateLimit, "rate limit exceeded: too many writes in the last 60s")
		}
		return p.checkWriteFamily(name, input)
	case tools.Bash:
		if !p.limits.allowShell() {
			return deny(ReasonRateLimit, "rate limit exceeded: too many shell commands in the last 60s")
		}
		return p.checkShell(input)
	case tools.Task:
		return allow()
	default:
		return allow()
	}
}

func (p *Policy) checkReadFamily(input map[string]any) Decision {
	candidate := firstString(input, "file_path", "pattern", "path")
	if candidate == "" {
		return allow()
	}
	base := filepath.Base(candidate)
	for _, pat := range sensitiveBasenamePatterns {
		if ok, _ := path.Match(pat, strings.ToLower(base)); ok {
			return deny(ReasonPathBlacklist, "path matches sensitive basename pattern: "+pat)
		}
	}
	return allow()
}

func (p *Policy) checkWriteFamily(name tools.Name, input map[string]any) Decision {
	target := firstString(input, "file_path")
	if target == "" {
		return deny(ReasonPathNotAllowed, "write target path is required")
	}
	abs := lexicalAbs(target)
	if !containedIn(abs, p.cfg.AllowedRoots) {
		return deny(ReasonPathNotAllowed, "path is not under an allowed root: "+abs)
	}
	for _, glob := range p.cfg.BlockedPathGlobs {
		rel := abs
		base := filepath.Base(abs)
		if ok, _ := path.Match(glob, rel); ok {
			return deny(ReasonPathNotAllowed, "path matches blocked glob: "+glob)
		}
		if ok, _ := path.Match(glob, base); ok {
			return deny(ReasonPathNotAllowed, "path matches blocked glob: "+glob)
		}
	}
	if d := p.checkExtension(abs); !d.Allow {
		return d
	}
	if name == tools.Write {
		content := firstString(input, "content")
		for _, re := range p.sensRe {
			if re.MatchString(content) {
				return deny(ReasonSensitiveData, "write content matches a sensitive-content pattern")
			}
		}
	}
	return allow()
}

func (p *Policy) checkExtension(abs string) Decision {
	ext := strings.ToLower(filepath.Ext(abs))
	if len(p.cfg.AllowedExtensions) > 0 {
		for _, a := range p.cfg.AllowedExtensions {
			if strings.EqualFold(a, ext) {
				return allow()
			}
		}
		return deny(ReasonExtension, "extension not in allowed list: "+ext)
	}
	for _, b := range p.cfg.BlockedExtensions {
		if strings.EqualFold(b, ext) {
			return deny(ReasonExtension, "extension is blocked: "+ext)
		}
	}
	return allow()
}

// pathTraversalRe matches `../` and `..\` sequences anywhere in a shell
// command string.
var pathTraversalRe = regexp.MustCompile(`\.\.[/\\]`)

// absPathRe extracts absolute filesystem paths (unix or windows-drive
// style) from a shell command string, a small set of platform-aware
// patterns per spec.md §4.1 rule 4.
var absPathRe = regexp.MustCompile(`(?:/[\w.\-/]+)|(?:[A-Za-z]:\\[\w.\-\\]+)`)

func (p *Policy) checkShell(input map[string]any) Decision {
	cmd := firstString(input, "command")
	if cmd == "" {
		return deny(ReasonDangerousCmd, "command is required")
	}
	if pathTraversalRe.MatchString(cmd) {
		return deny(ReasonPathTraversal, "command contains a path traversal sequence")
	}
	for _, re := range p.dangRe {
		if re.MatchString(cmd) {
			return deny(ReasonDangerousCmd, "command matches a dangerous-command pattern")
		}
	}
	for _, match := range absPathRe.FindAllString(cmd, -1) {
		abs := lexicalAbs(match)
		if !containedIn(abs, p.cfg.AllowedRoots) {
			return deny(ReasonPathNotAllowed, "command references a path outside allowed roots: "+abs)
		}
	}
	return allow()
}

func firstString(input map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := input[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// lexicalAbs normalizes path via Clean only; it never follows symlinks.
func lexicalAbs(p string) string {
	return filepath.Clean(p)
}

func containedIn(abs string, roots []string) bool {
	for _, root := range roots {
		rootClean := filepath.Clean(root)
		if abs == rootClean {
			return true
		}
		if strings.HasPrefix(abs, rootClean+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
