package taskgraph

import (
	"testing"

	"github.com/shuntksh/openturbo/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOrderIsDeterministic(t *testing.T) {
	pkgs := map[string]*workflow.WorkspacePackage{
		"zeta":  {Name: "zeta", Scripts: map[string]string{"build": "x"}},
		"alpha": {Name: "alpha", Scripts: map[string]string{"build": "x"}},
		"mid":   {Name: "mid", Scripts: map[string]string{"build": "x"}},
	}

	var firstOrder []string
	for i := 0; i < 10; i++ {
		nodes := Build("build", nil, pkgs)
		order := make([]string, len(nodes))
		for j, n := range nodes {
			order[j] = n.PackageName
		}
		if i == 0 {
			firstOrder = order
			continue
		}
		assert.Equal(t, firstOrder, order, "node order must not vary across calls despite map iteration")
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, firstOrder)
}

func TestBuildDependencyOrderIsDeterministic(t *testing.T) {
	pkgs := map[string]*workflow.WorkspacePackage{
		"app": {Name: "app", Scripts: map[string]string{"build": "x"}, WorkspaceDeps: []string{"zeta", "alpha", "mid"}},
		"zeta": {Name: "zeta", Scripts: map[string]string{"build": "x"}},
		"alpha": {Name: "alpha", Scripts: map[string]string{"build": "x"}},
		"mid": {Name: "mid", Scripts: map[string]string{"build": "x"}},
	}

	nodes := Build("build", []string{"^build"}, pkgs)
	byPkg := make(map[string]*workflow.TaskNode, len(nodes))
	for _, n := range nodes {
		byPkg[n.PackageName] = n
	}
	require.Contains(t, byPkg, "app")
	assert.Equal(t, []string{"alpha#build", "mid#build", "zeta#build"}, byPkg["app"].Dependencies)
}

func TestBuildSpecificDep(t *testing.T) {
	pkgs := map[string]*workflow.WorkspacePackage{
		"app":  {Name: "app", Scripts: map[string]string{"build": "x"}},
		"libs": {Name: "libs", Scripts: map[string]string{"prepare": "x"}},
	}

	nodes := Build("build", []string{"libs#prepare"}, pkgs)
	require.Len(t, nodes, 1)
	assert.Equal(t, []string{"libs#prepare"}, nodes[0].Dependencies)
}
