// Package hook executes shell hooks with retry semantics (spec.md §4.2).
// Subprocess construction is grounded on
// internal/interface/external/claudecli.Runner's exec.Command idiom;
// the retry loop is ported from original_source/dirorch/hooks.py.
package hook

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/kobuchi/dirorch/internal/domain/workflow"
	"github.com/kobuchi/dirorch/internal/infra/log"
	"github.com/kobuchi/dirorch/internal/infra/render"
)

const shellPath = "/bin/sh"

// Runner spawns hook commands through the platform shell.
type Runner struct {
	Root    string
	Retries int
	Logger  log.Logger
}

// New returns a Runner rooted at root with the given retry policy.
func New(root string, retries int, logger log.Logger) *Runner {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Runner{Root: root, Retries: retries, Logger: logger}
}

// Outcome is the result of running a hook to exhaustion.
type Outcome int

const (
	Success Outcome = iota
	Exhausted
)

// Run executes hook.Cmd through the platform shell, with env as the
// child's full environment. If hook.Stdin is set, it is rendered against
// vars and written to the child's standard input before it is closed;
// otherwise standard input is closed immediately. context is used only
// for log messages. Total attempts = retries+1 (spec.md §4.2).
func (r *Runner) Run(hook workflow.HookSpec, env map[string]string, vars render.Vars, context string) (Outcome, error) {
	if hook.IsZero() {
		return Success, nil
	}

	var stdin string
	if hook.HasStdin() {
		rendered, err := render.Render(hook.Stdin, vars, r.Root)
		if err != nil {
			return Exhausted, fmt.Errorf("hook: render stdin for %s: %w", context, err)
		}
		stdin = rendered
	}

	attempts := r.Retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		err := r.attempt(hook.Cmd, env, stdin)
		if err == nil {
			return Success, nil
		}
		r.Logger.Warn("%s failed (attempt %d/%d): %v", context, attempt, attempts, err)
	}
	return Exhausted, nil
}

func (r *Runner) attempt(cmd string, env map[string]string, stdin string) error {
	c := exec.Command(shellPath, "-c", cmd)
	c.Dir = r.Root
	c.Env = flattenEnv(env)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	if stdin != "" {
		c.Stdin = strings.NewReader(stdin)
	}
	// else: leave c.Stdin nil, which os/exec treats as an already-closed
	// input — matching spec.md §4.2's "otherwise, standard input is
	// closed immediately".

	return c.Run()
}

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
