// Package envbuild composes the per-hook environment (spec.md §4.3):
// process environment, user-declared workflow environment, the
// DIR_<PHASE>_<STATE> map, and (for transition hooks) INPUT_ENTITY.
// Grounded on original_source/dirorch/env.py, including its
// dependency-ordered render of environment values against the DIR_* map
// (SPEC_FULL.md §9.1).
package envbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kobuchi/dirorch/internal/domain/workflow"
	"github.com/kobuchi/dirorch/internal/infra/render"
)

// DirVars builds only the DIR_<PHASE>_<STATE> entries (spec.md §4.3),
// each mapped to the absolute path of its directory under root. _failed
// directories are never exposed, per spec.
func DirVars(cfg workflow.Config, root string) map[string]string {
	dirs := make(map[string]string)
	for _, p := range cfg.Phases {
		for _, st := range p.States {
			key := fmt.Sprintf("DIR_%s_%s", sanitize(p.Name), sanitize(st))
			dirs[key] = mustAbs(filepath.Join(root, p.Name, st))
		}
	}
	return dirs
}

// Base builds the base environment shared by every hook invocation for
// this run: process env ⊕ user env (rendered against DIR_*) ⊕ DIR_* map.
// INPUT_ENTITY is added per-invocation by the caller for transition hooks
// only (spec.md §4.3).
func Base(cfg workflow.Config, root string) (map[string]string, error) {
	dirs := DirVars(cfg, root)

	userEnv, err := renderUserEnv(cfg.Env, dirs, root)
	if err != nil {
		return nil, err
	}

	env := processEnv()
	for k, v := range userEnv {
		env[k] = v
	}
	for k, v := range dirs {
		env[k] = v
	}
	return env, nil
}

// WithEntity returns a copy of base with INPUT_ENTITY set to entityPath,
// for transition hooks only (spec.md §4.3).
func WithEntity(base map[string]string, entityPath string) map[string]string {
	env := make(map[string]string, len(base)+1)
	for k, v := range base {
		env[k] = v
	}
	env["INPUT_ENTITY"] = mustAbs(entityPath)
	return env
}

func processEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}
	return env
}

// renderUserEnv renders each user-declared environment value as a
// template against the DIR_* map plus already-rendered sibling entries,
// retrying until every entry resolves or no entry can make progress
// (dependency cycle), matching original_source/dirorch/env.py's
// _render_workflow_env loop.
func renderUserEnv(raw map[string]string, dirs map[string]string, root string) (map[string]string, error) {
	rendered := make(map[string]string)
	remaining := make(map[string]string, len(raw))
	for k, v := range raw {
		remaining[k] = v
	}
	errs := make(map[string]error)

	for len(remaining) > 0 {
		progressed := false
		for key, tmpl := range remaining {
			context := mergeVars(dirs, rendered)
			out, err := render.Render(tmpl, context, root)
			if err != nil {
				errs[key] = err
				continue
			}
			rendered[key] = out
			delete(remaining, key)
			progressed = true
		}
		if progressed {
			continue
		}
		for key := range remaining {
			return nil, fmt.Errorf("envbuild: environment variable %q template failed: %w", key, errs[key])
		}
	}
	return rendered, nil
}

func mergeVars(a, b map[string]string) render.Vars {
	merged := make(render.Vars, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

// sanitize uppercases raw and replaces every byte outside [A-Z0-9] with
// '_', per spec.md §4.3. Implemented as an explicit byte-range check
// rather than a regexp, matching the teacher's path-safety helpers.
func sanitize(raw string) string {
	upper := strings.ToUpper(raw)
	out := make([]byte, len(upper))
	for i := 0; i < len(upper); i++ {
		c := upper[i]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out[i] = c
		} else {
			out[i] = '_'
		}
	}
	return string(out)
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
