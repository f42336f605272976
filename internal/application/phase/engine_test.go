package phase

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobuchi/dirorch/internal/domain/workflow"
	"github.com/kobuchi/dirorch/internal/infra/hook"
	"github.com/kobuchi/dirorch/internal/infra/store"
)

func newTestEngine(t *testing.T, retries int) (*Engine, *store.Store, string) {
	root := t.TempDir()
	fs := afero.NewOsFs()
	st := store.New(fs, root)
	hooks := hook.New(root, retries, nil)
	eng := New(st, hooks, map[string]string{}, nil)
	return eng, st, root
}

func writeEntity(t *testing.T, st *store.Store, phase, state, name string) {
	t.Helper()
	path := st.Dir(phase, state)
	require.NoError(t, afero.NewOsFs().MkdirAll(path, 0o755))
	require.NoError(t, afero.WriteFile(afero.NewOsFs(), path+"/"+name, []byte("x"), 0o644))
}

func TestRunToFixpointPureMoveHasNoRetries(t *testing.T) {
	eng, st, _ := newTestEngine(t, 2)
	p := workflow.Phase{
		Name:   "tasks",
		States: []string{"new", "done"},
		Transitions: []workflow.Transition{
			{Source: "new", Destination: "done"},
		},
	}
	require.NoError(t, st.EnsureDirs([]workflow.Phase{p}))
	writeEntity(t, st, "tasks", "new", "a.txt")
	writeEntity(t, st, "tasks", "new", "b.txt")

	moves, err := eng.RunToFixpoint(p, failOnJump(t))
	require.NoError(t, err)
	assert.Equal(t, 2, moves)

	names, err := st.ListEntities("tasks", "done")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
}

func TestRunToFixpointQuarantinesAfterExhaustingRetries(t *testing.T) {
	eng, st, root := newTestEngine(t, 2)
	counter := root + "/attempts"
	p := workflow.Phase{
		Name:   "p",
		States: []string{"new", "ok"},
		Transitions: []workflow.Transition{
			{Source: "new", Destination: "ok", Hook: workflow.HookSpec{
				Cmd: "c=$(cat " + counter + " 2>/dev/null || echo 0); echo $((c+1)) > " + counter + "; false",
			}},
		},
	}
	require.NoError(t, st.EnsureDirs([]workflow.Phase{p}))
	writeEntity(t, st, "p", "new", "x")

	moves, err := eng.RunToFixpoint(p, failOnJump(t))
	require.NoError(t, err)
	assert.Equal(t, 1, moves)

	failed, err := st.ListEntities("p", workflow.FailedState)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, failed)

	data, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, "3\n", string(data), "hook must run exactly retries+1 times (S2/invariant 4)")
}

func TestRunToFixpointFiresJumpOnSuccessfulTransition(t *testing.T) {
	eng, st, _ := newTestEngine(t, 0)
	p := workflow.Phase{
		Name:   "p",
		States: []string{"new", "done"},
		Transitions: []workflow.Transition{
			{Source: "new", Destination: "done", Jump: "other"},
		},
	}
	require.NoError(t, st.EnsureDirs([]workflow.Phase{p}))
	writeEntity(t, st, "p", "new", "x")

	var jumped []string
	_, err := eng.RunToFixpoint(p, func(target string) error {
		jumped = append(jumped, target)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, jumped)
}

func TestRunToFixpointEntityModeDrivesOneEntityThroughChain(t *testing.T) {
	eng, st, _ := newTestEngine(t, 0)
	p := workflow.Phase{
		Name:   "p",
		States: []string{"a", "b", "c"},
		Mode:   workflow.ModeEntity,
		Transitions: []workflow.Transition{
			{Source: "a", Destination: "b"},
			{Source: "b", Destination: "c"},
		},
	}
	require.NoError(t, st.EnsureDirs([]workflow.Phase{p}))
	writeEntity(t, st, "p", "a", "x")

	moves, err := eng.RunToFixpoint(p, failOnJump(t))
	require.NoError(t, err)
	assert.Equal(t, 2, moves)

	names, err := st.ListEntities("p", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, names)
}

// A hook-exhausted transition partway through an entity-mode chain must
// quarantine the entity and stop driving it, not continue on to later
// transitions as if the quarantine move had landed it in their source
// state (spec.md §7, §4.6 entity mode).
func TestRunToFixpointQuarantinesMidChainInEntityMode(t *testing.T) {
	eng, st, _ := newTestEngine(t, 0)
	p := workflow.Phase{
		Name:   "p",
		States: []string{"a", "b", "c"},
		Mode:   workflow.ModeEntity,
		Transitions: []workflow.Transition{
			{Source: "a", Destination: "b", Hook: workflow.HookSpec{Cmd: "false"}},
			{Source: "b", Destination: "c", Hook: workflow.HookSpec{Cmd: "true"}},
		},
	}
	require.NoError(t, st.EnsureDirs([]workflow.Phase{p}))
	writeEntity(t, st, "p", "a", "x")

	moves, err := eng.RunToFixpoint(p, failOnJump(t))
	require.NoError(t, err)
	assert.Equal(t, 1, moves)

	failed, err := st.ListEntities("p", workflow.FailedState)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, failed)

	b, err := st.ListEntities("p", "b")
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestRunToFixpointRunsCompletionHooks(t *testing.T) {
	root := t.TempDir()
	fs := afero.NewOsFs()
	st := store.New(fs, root)
	hooks := hook.New(root, 0, nil)
	eng := New(st, hooks, map[string]string{}, nil)

	marker := root + "/completed"
	p := workflow.Phase{
		Name:        "p",
		States:      []string{"new"},
		Completions: []workflow.HookSpec{{Cmd: "touch " + marker}},
	}
	require.NoError(t, st.EnsureDirs([]workflow.Phase{p}))

	_, err := eng.RunToFixpoint(p, failOnJump(t))
	require.NoError(t, err)

	exists, err := afero.Exists(fs, marker)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunToFixpointAbortsOnCompletionHookExhaustion(t *testing.T) {
	eng, st, _ := newTestEngine(t, 0)
	p := workflow.Phase{
		Name:        "p",
		States:      []string{"new"},
		Completions: []workflow.HookSpec{{Cmd: "false"}},
	}
	require.NoError(t, st.EnsureDirs([]workflow.Phase{p}))

	_, err := eng.RunToFixpoint(p, failOnJump(t))
	require.Error(t, err)
}

func failOnJump(t *testing.T) JumpHandler {
	return func(target string) error {
		t.Fatalf("unexpected jump to %q", target)
		return nil
	}
}
