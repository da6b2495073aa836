// Package taskgraph builds the inner per-package task DAG for a
// workspace-script step (TurboRepo-style ^task/task/pkg#task dependency
// semantics) and partitions it into parallel-safe execution layers.
package taskgraph

import (
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set"
	"github.com/shuntksh/openturbo/internal/workflow"
)

// Build produces one TaskNode per package that has the named script,
// wiring dependency edges per the ^task / pkg#task dependsOn spec:
//   - "^NAME": fan out to the same script in every workspace dependency of
//     the candidate package (immediate edges only; the layerer closes over
//     the transitive set since dependencies are resolved as a whole graph).
//   - "PKG#NAME": depend on that exact task, if PKG exists and has NAME.
//   - bare "NAME": reserved, treated as a no-op at this level.
func Build(script string, dependsOn []string, pkgs map[string]*workflow.WorkspacePackage) []*workflow.TaskNode {
	hasCaret := false
	var specificDeps []string
	for _, spec := range dependsOn {
		if strings.HasPrefix(spec, "^") {
			hasCaret = true
		} else if strings.Contains(spec, "#") {
			specificDeps = append(specificDeps, spec)
		}
	}

	var candidates []string
	for name, pkg := range pkgs {
		if _, ok := pkg.Scripts[script]; ok {
			candidates = append(candidates, name)
		}
	}
	// pkgs is a map, so iteration order is random per run; sort so the node
	// order fed into LayerTasks - and therefore within-layer ordering - is
	// reproducible across runs.
	sort.Strings(candidates)

	nodes := make([]*workflow.TaskNode, 0, len(candidates))
	for _, name := range candidates {
		pkg := pkgs[name]
		deps := mapset.NewSet()

		if hasCaret {
			for _, depName := range pkg.WorkspaceDeps {
				depPkg, ok := pkgs[depName]
				if !ok {
					continue
				}
				if _, ok := depPkg.Scripts[script]; ok {
					deps.Add(workflow.TaskID(depName, script))
				}
			}
		}

		for _, spec := range specificDeps {
			pkgName, taskName := splitSpecificDep(spec)
			depPkg, ok := pkgs[pkgName]
			if !ok {
				continue
			}
			if _, ok := depPkg.Scripts[taskName]; !ok {
				continue
			}
			deps.Add(workflow.TaskID(pkgName, taskName))
		}

		depList := make([]string, 0, deps.Cardinality())
		for _, v := range deps.ToSlice() {
			depList = append(depList, fmt.Sprintf("%v", v))
		}
		sort.Strings(depList)

		nodes = append(nodes, &workflow.TaskNode{
			PackageName:  name,
			PackagePath:  pkg.Path,
			Script:       script,
			Dependencies: depList,
		})
	}

	return nodes
}

func splitSpecificDep(spec string) (pkg, task string) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == '#' {
			return spec[:i], spec[i+1:]
		}
	}
	return spec, ""
}
