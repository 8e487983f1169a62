package command

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adamavenir/vliz/internal/auth"
	"github.com/adamavenir/vliz/internal/backend"
	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/types"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// CommandContext provides shared command resources.
type CommandContext struct {
	Config     *core.Config
	ConfigPath string
	Store      *db.SQLStore
	Logger     zerolog.Logger
	JSONMode   bool

	logFile *os.File
}

// contextOptions select how a command logs. Interactive commands log to a file
// so output never corrupts the terminal UI.
type contextOptions struct {
	logToFile bool
}

// GetContext loads config, opens the state store and builds the logger.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	return getContext(cmd, contextOptions{})
}

func getContext(cmd *cobra.Command, opts contextOptions) (*CommandContext, error) {
	jsonMode, _ := cmd.Flags().GetBool("json")
	logLevel, _ := cmd.Flags().GetString("log-level")

	configPath, err := resolveConfigPath(cmd)
	if err != nil {
		return nil, err
	}
	config, err := core.ReadConfig(configPath)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cmd, config)

	conn, err := db.OpenStateDB(config.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", config.StatePath, err)
	}

	ctx := &CommandContext{
		Config:     config,
		ConfigPath: configPath,
		Store:      db.NewSQLStore(conn),
		JSONMode:   jsonMode,
	}

	var out io.Writer = cmd.ErrOrStderr()
	if opts.logToFile {
		file, err := core.OpenLogFile(config.StatePath)
		if err != nil {
			_ = ctx.Store.Close()
			return nil, err
		}
		ctx.logFile = file
		ctx.Logger = core.NewLogger(file, logLevel)
	} else {
		if logLevel == "" {
			logLevel = "warn"
		}
		ctx.Logger = core.NewConsoleLogger(out, logLevel)
	}
	return ctx, nil
}

// Close releases the store and log file.
func (c *CommandContext) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.logFile != nil {
		_ = c.logFile.Close()
	}
}

// NewClient builds the backend client for the configured URL.
func (c *CommandContext) NewClient() (*backend.Client, error) {
	return backend.NewClient(c.Config.BackendURL)
}

// RequireLogin returns the logged-in username. Expired Discord sessions are
// cleared.
func (c *CommandContext) RequireLogin() (string, error) {
	authenticated, err := db.GetString(c.Store, types.KeyAuth, "")
	if err != nil {
		return "", err
	}
	if authenticated != "true" {
		return "", errNotLoggedIn
	}
	if token, ok, err := c.Store.Get(types.KeySession); err != nil {
		return "", err
	} else if ok {
		if _, err := auth.ParseSessionToken(token, time.Now()); err != nil {
			if clearErr := db.ClearLogin(c.Store); clearErr != nil {
				return "", clearErr
			}
			return "", fmt.Errorf("%w: %v", errNotLoggedIn, err)
		}
	}
	return db.GetString(c.Store, types.KeyUsername, "")
}

// ReloadConfig rereads the config file. The state path stays fixed for the
// life of the context.
func (c *CommandContext) ReloadConfig(cmd *cobra.Command) error {
	config, err := core.ReadConfig(c.ConfigPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, config)
	config.StatePath = c.Config.StatePath
	c.Config = config
	return nil
}

func applyFlagOverrides(cmd *cobra.Command, config *core.Config) {
	if backendURL, _ := cmd.Flags().GetString("backend"); strings.TrimSpace(backendURL) != "" {
		config.BackendURL = backendURL
	}
	if statePath, _ := cmd.Flags().GetString("state"); strings.TrimSpace(statePath) != "" {
		config.StatePath = statePath
	}
}

func resolveConfigPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); strings.TrimSpace(path) != "" {
		return path, nil
	}
	return core.DefaultConfigPath()
}
