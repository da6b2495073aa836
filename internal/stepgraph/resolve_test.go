package stepgraph

import (
	"testing"

	"github.com/shuntksh/openturbo/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steps() []*workflow.Step {
	return []*workflow.Step{
		{Name: "lint"},
		{Name: "build", DependsOn: []string{"lint"}},
		{Name: "test", DependsOn: []string{"build"}},
	}
}

func names(steps []*workflow.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Name
	}
	return out
}

func TestResolveTransitiveDeps(t *testing.T) {
	result, err := Resolve(steps(), []string{"test"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lint", "build", "test"}, names(result))
}

func TestResolveDeduplicatesAndPreservesDeclarationOrder(t *testing.T) {
	result, err := Resolve(steps(), []string{"build", "test"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lint", "build", "test"}, names(result))
}

func TestResolveAllStepsNoCyclesNoFilters(t *testing.T) {
	all := steps()
	result, err := Resolve(all, names(all))
	require.NoError(t, err)
	assert.Equal(t, names(all), names(result))
}

func TestResolveUnknownStep(t *testing.T) {
	_, err := Resolve(steps(), []string{"nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Step "nope" not found`)
}

func TestResolveCycle(t *testing.T) {
	cyclic := []*workflow.Step{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}
	_, err := Resolve(cyclic, []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cycle involving")
}
