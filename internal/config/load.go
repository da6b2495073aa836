package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/shuntksh/openturbo/internal/workflow"
)

// Error wraps configuration-stage failures (unreadable file, unparseable
// JSON) so the CLI layer can exit 1 without a stack trace.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config error (%s): %s", e.Path, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Load reads and parses the config file at path into a workflow.Config.
func Load(path string) (*workflow.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Message: err.Error()}
	}

	var doc struct {
		Workflows map[string]*workflow.Workflow `json:"workflows"`
		Worktree  *workflow.WorktreeConfig      `json:"worktree"`
	}
	if err := unmarshalJSONC(data, &doc); err != nil {
		return nil, &Error{Path: path, Message: err.Error()}
	}

	cfg := &workflow.Config{Workflows: doc.Workflows, Worktree: doc.Worktree}
	if cfg.Workflows == nil {
		cfg.Workflows = map[string]*workflow.Workflow{}
	}
	return cfg, nil
}

// unmarshalJSONC strips JSONC comments (single-line `//` and block `/* */`)
// before delegating to encoding/json. Stripping is JSON-preserving: valid
// JSON input decodes to the same value with or without the strip step.
func unmarshalJSONC(data []byte, v interface{}) error {
	stripped := jsonc.ToJSON(data)
	return json.Unmarshal(stripped, v)
}
