package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/engine"
	"github.com/spf13/cobra"
)

// NewSendCmd creates the send command.
func NewSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send a message or file",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if _, err := ctx.RequireLogin(); err != nil {
				return writeCommandError(cmd, err)
			}
			settings, err := db.LoadSettings(ctx.Store)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			text := core.T(settings.Language)

			public, _ := cmd.Flags().GetBool("public")
			filePath, _ := cmd.Flags().GetString("file")
			channel := channelFlag(public)

			client, err := ctx.NewClient()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			eng, err := engine.New(engine.Options{
				Log:          client,
				Store:        ctx.Store,
				Logger:       ctx.Logger,
				Language:     settings.Language,
				Active:       channel,
				SoundEnabled: false,
			})
			if err != nil {
				return writeCommandError(cmd, err)
			}

			confirmation := text.MessageSent
			if filePath != "" {
				if len(args) > 0 {
					return writeCommandError(cmd, fmt.Errorf("--file cannot be combined with message text"))
				}
				data, err := os.ReadFile(filePath)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				att, err := core.NewAttachment(filePath, data)
				if errors.Is(err, core.ErrFileTooLarge) {
					return writeCommandError(cmd, fmt.Errorf("%s: %w", text.FileTooLarge, err))
				}
				if err != nil {
					return writeCommandError(cmd, err)
				}
				if err := eng.SendFile(cmd.Context(), att, channel); err != nil {
					return writeCommandError(cmd, fmt.Errorf("%s: %w", text.FileSendError, err))
				}
				confirmation = text.FileSent
			} else {
				message := strings.Join(args, " ")
				if strings.TrimSpace(message) == "" {
					return writeCommandError(cmd, errors.New(text.EmptyMessage))
				}
				if err := eng.Send(cmd.Context(), message, channel); err != nil {
					return writeCommandError(cmd, fmt.Errorf("%s: %w", text.SendError, err))
				}
			}

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"ok":      true,
					"channel": channel,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), confirmation)
			return nil
		},
	}

	cmd.Flags().Bool("public", false, "send to the public channel")
	cmd.Flags().String("file", "", "send a file instead of text")
	return cmd
}
