package tools

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) *Func {
	return &Func{
		ToolName:        name,
		ToolDescription: "echoes " + name,
		Params: map[string]Param{
			"text": {Type: "string", Description: "text to echo", Required: true},
		},
		Fn: func(_ context.Context, _ string, params map[string]any) (any, error) {
			return params["text"], nil
		},
	}
}

func TestRegistry_RegisterGetUnregister(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.Equal(t, 0, r.Count())

	r.Register(echoTool("echo"))
	got, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echoes echo", got.Description())
	assert.Equal(t, 1, r.Count())

	r.Unregister("echo")
	_, ok = r.Get("echo")
	assert.False(t, ok)

	// removing an absent tool is a no-op
	r.Unregister("echo")
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(echoTool("echo"))
	replacement := echoTool("echo")
	replacement.ToolDescription = "second"
	r.Register(replacement)

	got, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "second", got.Description())
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_DescribeSortedByName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(echoTool(name))
	}
	descs := r.Describe()
	require.Len(t, descs, 3)
	assert.Equal(t, "alpha", descs[0].Name)
	assert.Equal(t, "mid", descs[1].Name)
	assert.Equal(t, "zeta", descs[2].Name)
	assert.True(t, descs[0].Parameters["text"].Required)
	assert.ElementsMatch(t, []string{"alpha", "mid", "zeta"}, r.Names())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Register(echoTool(fmt.Sprintf("tool-%d", i)))
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Describe()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, r.Count())
}

func TestValidateParams(t *testing.T) {
	t.Parallel()

	tool := &Func{
		ToolName: "needs_two",
		Params: map[string]Param{
			"b":        {Type: "string", Required: true},
			"a":        {Type: "string", Required: true},
			"optional": {Type: "string"},
		},
	}

	err := ValidateParams(tool, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, "missing required parameter(s) for needs_two: [a b]", err.Error())

	err = ValidateParams(tool, map[string]any{"a": "x", "b": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[b]")

	assert.NoError(t, ValidateParams(tool, map[string]any{"a": "x", "b": "y"}))
}

func TestFunc_NilImplementation(t *testing.T) {
	t.Parallel()

	_, err := (&Func{ToolName: "empty"}).Execute(context.Background(), "u", nil)
	require.Error(t, err)
	assert.Empty(t, (&Func{}).Parameters())
}

func TestDiscovery_ExcludesItself(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(NewDiscoveryTool(r))
	r.Register(echoTool("echo"))

	tool, ok := r.Get(DiscoveryToolName)
	require.True(t, ok)
	out, err := tool.Execute(context.Background(), "u", map[string]any{})
	require.NoError(t, err)

	result, ok := out.(DiscoveryResult)
	require.True(t, ok)
	assert.Equal(t, 1, result.TotalCount)
	require.Len(t, result.AvailableTools, 1)
	assert.Equal(t, "echo", result.AvailableTools[0].Name)
	assert.Equal(t, []DiscoveredParam{
		{Name: "text", Type: "string", Required: true, Description: "text to echo"},
	}, result.AvailableTools[0].Parameters)
}

func TestDiscovery_SeesLateRegistrations(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(NewDiscoveryTool(r))
	assert.Equal(t, 0, Discover(r).TotalCount)

	r.Register(echoTool("late"))
	assert.Equal(t, 1, Discover(r).TotalCount)

	r.Unregister("late")
	assert.Empty(t, Discover(r).AvailableTools)
}
