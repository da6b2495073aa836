package taskgraph

import (
	"testing"

	"github.com/shuntksh/openturbo/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndLayerWorkspaceDag(t *testing.T) {
	pkgs := map[string]*workflow.WorkspacePackage{
		"engine":    {Name: "engine", Scripts: map[string]string{"test": "x"}, WorkspaceDeps: []string{"internals"}},
		"internals": {Name: "internals", Scripts: map[string]string{"test": "x"}},
		"hcl":       {Name: "hcl", Scripts: map[string]string{"test": "x"}, WorkspaceDeps: []string{"internals"}},
	}

	nodes := Build("test", []string{"^test"}, pkgs)
	require.Len(t, nodes, 3)

	byPkg := make(map[string]*workflow.TaskNode, 3)
	for _, n := range nodes {
		byPkg[n.PackageName] = n
	}
	assert.ElementsMatch(t, []string{"internals#test"}, byPkg["engine"].Dependencies)
	assert.ElementsMatch(t, []string{"internals#test"}, byPkg["hcl"].Dependencies)
	assert.Empty(t, byPkg["internals"].Dependencies)

	layers, err := LayerTasks(nodes)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Len(t, layers[0], 1)
	assert.Equal(t, "internals", layers[0][0].PackageName)
	assert.Len(t, layers[1], 2)
}

func TestLayerDetectsCycle(t *testing.T) {
	nodes := []*Node{
		{ID: "a#t", Deps: []string{"b#t"}},
		{ID: "b#t", Deps: []string{"a#t"}},
	}
	_, err := Layer(nodes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Circular dependency")
}

func TestLayerIgnoresEdgesOutsideInputSet(t *testing.T) {
	nodes := []*Node{
		{ID: "a", Deps: []string{"nonexistent"}},
	}
	layers, err := Layer(nodes)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, "a", layers[0][0].ID)
}
