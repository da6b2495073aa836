// Package cmdutil resolves flags, config, git context, and logging common
// to every ot subcommand, and assembles them into a CmdBase.
package cmdutil

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/pflag"

	"github.com/shuntksh/openturbo/internal/config"
	"github.com/shuntksh/openturbo/internal/gitutil"
	"github.com/shuntksh/openturbo/internal/ui"
	"github.com/shuntksh/openturbo/internal/workflow"
	"github.com/shuntksh/openturbo/internal/worktree"
)

const envLogLevel = "OT_LOG_LEVEL"

// Helper holds configuration values parsed from flags/env, common to every
// subcommand. It is not used directly by commands; it drives CmdBase.
type Helper struct {
	Version string

	forceColor bool
	noColor    bool
	verbosity  int

	rawCwd     string
	configPath string

	cleanupsMu sync.Mutex
	cleanups   []io.Closer
}

// NewHelper returns a new helper for the given version string.
func NewHelper(version string) *Helper {
	return &Helper{Version: version}
}

// AddFlags registers the common flags on the root command's persistent
// flag set.
func (h *Helper) AddFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&h.forceColor, "color", false, "Force color usage in the terminal")
	flags.BoolVar(&h.noColor, "no-color", false, "Suppress color usage in the terminal")
	flags.CountVarP(&h.verbosity, "verbose", "v", "increase log verbosity")
	flags.StringVar(&h.rawCwd, "cwd", "", "the directory to run ot from")
	flags.StringVarP(&h.configPath, "config", "c", "", "path to the workflow config file")
}

// RegisterCleanup saves a function to run after execution completes.
func (h *Helper) RegisterCleanup(cleanup io.Closer) {
	h.cleanupsMu.Lock()
	defer h.cleanupsMu.Unlock()
	h.cleanups = append(h.cleanups, cleanup)
}

// Cleanup runs the registered cleanup handlers.
func (h *Helper) Cleanup() {
	h.cleanupsMu.Lock()
	defer h.cleanupsMu.Unlock()
	var out cli.Ui
	for _, cleanup := range h.cleanups {
		if err := cleanup.Close(); err != nil {
			if out == nil {
				out = h.getUI()
			}
			out.Warn(fmt.Sprintf("cleanup failed: %v", err))
		}
	}
}

func (h *Helper) getUI() cli.Ui {
	colorMode := ui.GetColorModeFromEnv()
	if h.noColor {
		colorMode = ui.ColorModeSuppressed
	}
	if h.forceColor {
		colorMode = ui.ColorModeForced
	}
	return ui.BuildColoredUi(colorMode)
}

func (h *Helper) getLogger() (hclog.Logger, error) {
	var level hclog.Level
	switch h.verbosity {
	case 0:
		if v := os.Getenv(envLogLevel); v != "" {
			level = hclog.LevelFromString(v)
			if level == hclog.NoLevel {
				return nil, fmt.Errorf("%s value %q is not a valid log level", envLogLevel, v)
			}
		} else {
			level = hclog.NoLevel
		}
	case 1:
		level = hclog.Info
	case 2:
		level = hclog.Debug
	default:
		level = hclog.Trace
	}

	output := ioutil.Discard
	logColor := hclog.ColorOff
	if level != hclog.NoLevel {
		output = os.Stderr
		logColor = hclog.AutoColor
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "ot",
		Level:  level,
		Color:  logColor,
		Output: output,
	}), nil
}

// CmdBase holds the components every ot subcommand needs: colored UI,
// structured logger, resolved git context, and loaded config.
type CmdBase struct {
	UI      cli.Ui
	Logger  hclog.Logger
	Verbose bool

	GitRoot       string
	CurrentBranch string
	InWorktree    bool

	ConfigPath string
	Config     *workflow.Config

	WorktreeManager *worktree.Manager
}

// GetCmdBase resolves cwd, git context, and config into a CmdBase.
// configPathOverride, if non-empty, takes precedence over the -c/--config
// flag and discovery.
func (h *Helper) GetCmdBase(configPathOverride string) (*CmdBase, error) {
	out := h.getUI()

	logger, err := h.getLogger()
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if h.rawCwd != "" {
		cwd = h.rawCwd
	}

	client := gitutil.New(cwd)
	gitRoot, err := client.RevParseShowTopLevel()
	if err != nil {
		return nil, fmt.Errorf("not a git repository (or any of the parent directories): %w", err)
	}

	currentBranch, err := client.CurrentBranch()
	if err != nil {
		return nil, err
	}

	inWorktree := false
	if records, err := client.WorktreeListPorcelain(); err == nil && len(records) > 0 {
		inWorktree = records[0].Path != gitRoot
	}

	configPath := configPathOverride
	if configPath == "" {
		configPath = h.configPath
	}
	if configPath == "" {
		configPath, err = config.Discover(cwd, gitRoot)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	wtMgr := worktree.New(gitRoot, cfg.Worktree, logger, out)

	return &CmdBase{
		UI:              out,
		Logger:          logger,
		Verbose:         h.verbosity > 0,
		GitRoot:         gitRoot,
		CurrentBranch:   currentBranch,
		InWorktree:      inWorktree,
		ConfigPath:      configPath,
		Config:          cfg,
		WorktreeManager: wtMgr,
	}, nil
}

// LogError prints an error to the UI and the structured logger.
func (b *CmdBase) LogError(err error) {
	b.Logger.Error("error", "err", err)
	b.UI.Error(fmt.Sprintf("%s%s", ui.ERROR_PREFIX, color.RedString(" %v", err)))
}

// LogWarning prints a warning to the UI and the structured logger.
func (b *CmdBase) LogWarning(prefix string, err error) {
	b.Logger.Warn(prefix, "warning", err)
	if prefix != "" {
		prefix = " " + prefix + ": "
	}
	b.UI.Warn(fmt.Sprintf("%s%s%s", ui.WARNING_PREFIX, prefix, color.YellowString(" %v", err)))
}

// LogInfo prints an informational message to the UI and the structured logger.
func (b *CmdBase) LogInfo(msg string) {
	b.Logger.Info(msg)
	b.UI.Info(fmt.Sprintf("%s%s", ui.InfoPrefix, color.WhiteString(" %v", msg)))
}
