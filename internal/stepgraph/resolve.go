// Package stepgraph resolves a requested set of step names to the closed
// set of steps including their transitive dependencies, preserving
// declaration order and detecting cycles.
package stepgraph

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"
	"github.com/shuntksh/openturbo/internal/workflow"
)

// CycleError reports a cycle discovered while walking dependsOn edges.
type CycleError struct {
	Step string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("Cycle involving %q", e.Step)
}

// NotFoundError reports a dependsOn or requested name with no matching step.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Step %q not found", e.Name)
}

// Resolve walks requestedNames depth-first through each step's dependsOn,
// collecting the closed set of steps, then returns them filtered from
// allSteps so the result preserves allSteps' declaration order regardless
// of the order names were requested in.
func Resolve(allSteps []*workflow.Step, requestedNames []string) ([]*workflow.Step, error) {
	byName := make(map[string]*workflow.Step, len(allSteps))
	for _, s := range allSteps {
		byName[s.Name] = s
	}

	collected := mapset.NewSet()
	visiting := mapset.NewSet()

	var visit func(name string) error
	visit = func(name string) error {
		if collected.Contains(name) {
			return nil
		}
		if visiting.Contains(name) {
			return &CycleError{Step: name}
		}
		step, ok := byName[name]
		if !ok {
			return &NotFoundError{Name: name}
		}
		visiting.Add(name)
		for _, dep := range step.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting.Remove(name)
		collected.Add(name)
		return nil
	}

	for _, name := range requestedNames {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	result := make([]*workflow.Step, 0, collected.Cardinality())
	for _, s := range allSteps {
		if collected.Contains(s.Name) {
			result = append(result, s)
		}
	}
	return result, nil
}
