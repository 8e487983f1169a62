package command

import (
	"fmt"
	"net"

	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/server"
	"github.com/spf13/cobra"
)

// NewBackendCmd creates the backend command.
func NewBackendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Run a local message log backend for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			dataDir, _ := cmd.Flags().GetString("data")
			appendRate, _ := cmd.Flags().GetFloat64("rate")
			logLevel, _ := cmd.Flags().GetString("log-level")
			if logLevel == "" {
				logLevel = "info"
			}
			logger := core.NewConsoleLogger(cmd.ErrOrStderr(), logLevel)

			var store server.LogStore
			if dataDir != "" {
				pebbleLog, err := server.OpenPebbleLog(dataDir)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				store = pebbleLog
				logger.Info().Str("dir", dataDir).Int("messages", pebbleLog.Len()).Msg("opened message log")
			} else {
				store = server.NewMemoryLog()
				logger.Warn().Msg("no --data dir; messages are kept in memory only")
			}
			defer store.Close()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return writeCommandError(cmd, fmt.Errorf("listen %s: %w", addr, err))
			}

			srv := server.New(server.Config{
				Store:      store,
				Logger:     logger,
				AppendRate: appendRate,
			})
			if err := srv.Serve(cmd.Context(), ln); err != nil {
				return writeCommandError(cmd, err)
			}
			logger.Info().Msg("backend stopped")
			return nil
		},
	}

	cmd.Flags().String("addr", "127.0.0.1:24642", "listen address")
	cmd.Flags().String("data", "", "directory for the persistent message log")
	cmd.Flags().Float64("rate", 0, "max appends per second (0 for default)")
	return cmd
}
