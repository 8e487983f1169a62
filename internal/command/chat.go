package command

import (
	"context"
	"fmt"
	"os"

	"github.com/adamavenir/vliz/internal/chat"
	"github.com/adamavenir/vliz/internal/engine"
	"github.com/spf13/cobra"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
				return writeCommandError(cmd, fmt.Errorf("--json not supported for interactive chat"))
			}

			ctx, err := getContext(cmd, contextOptions{logToFile: true})
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			username, err := ctx.RequireLogin()
			if err != nil {
				return writeCommandError(cmd, err)
			}

			exportDir, _ := cmd.Flags().GetString("export-dir")
			if exportDir == "" {
				if exportDir, err = os.Getwd(); err != nil {
					return writeCommandError(cmd, err)
				}
			}

			err = runSession(cmd, ctx, func(runCtx context.Context, notice string) error {
				client, err := ctx.NewClient()
				if err != nil {
					return err
				}
				return chat.Run(chat.Options{
					Context: runCtx,
					Engine: engine.Options{
						Log:      client,
						Notifier: engine.DesktopNotifier{},
						Logger:   ctx.Logger,
					},
					Store:     ctx.Store,
					Username:  username,
					Interval:  ctx.Config.Interval(),
					ExportDir: exportDir,
					Notice:    notice,
				})
			})
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().String("export-dir", "", "directory for saved transcripts (default current directory)")
	return cmd
}
