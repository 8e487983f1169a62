package command

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/engine"
	"github.com/adamavenir/vliz/internal/types"
	"github.com/spf13/cobra"
)

// fetchSnapshot fetches the log once and classifies it without touching the
// persisted sync state.
func fetchSnapshot(cmd *cobra.Command, ctx *CommandContext) (engine.Snapshot, error) {
	client, err := ctx.NewClient()
	if err != nil {
		return engine.Snapshot{}, err
	}
	raw, err := client.Fetch(cmd.Context())
	if err != nil {
		return engine.Snapshot{}, err
	}
	support, public := core.Partition(raw)
	return engine.Snapshot{Total: len(raw), Support: support, Public: public}, nil
}

// NewGetCmd creates the get command.
func NewGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the messages of a channel",
		Args:  cobra.NoArgs,
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
			sent, err := db.LoadSentMessages(ctx.Store)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			public, _ := cmd.Flags().GetBool("public")
			last, _ := cmd.Flags().GetInt("last")
			saveDir, _ := cmd.Flags().GetString("save")
			channel := channelFlag(public)

			snapshot, err := fetchSnapshot(cmd, ctx)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			messages := snapshot.Messages(channel)
			if last > 0 && len(messages) > last {
				messages = messages[len(messages)-last:]
			}

			if saveDir != "" {
				saved, err := saveAttachments(saveDir, messages)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				ctx.Logger.Info().Int("files", len(saved)).Str("dir", saveDir).Msg("attachments saved")
			}

			out := cmd.OutOrStdout()
			if ctx.JSONMode {
				records := make([]messageRecord, 0, len(messages))
				for _, msg := range messages {
					_, mine := sent[core.DisplayText(msg)]
					records = append(records, newMessageRecord(msg, mine))
				}
				return json.NewEncoder(out).Encode(records)
			}

			text := core.T(settings.Language)
			if len(messages) == 0 {
				fmt.Fprintln(out, text.NoMessages)
				return nil
			}
			for _, msg := range messages {
				_, mine := sent[core.DisplayText(msg)]
				fmt.Fprintln(out, FormatMessage(msg, mine, text))
			}
			return nil
		},
	}

	cmd.Flags().Bool("public", false, "read the public channel instead of support")
	cmd.Flags().Int("last", 0, "show only the last N messages")
	cmd.Flags().String("save", "", "write file attachments into this directory")
	return cmd
}

// saveAttachments decodes every attachment in messages into dir and returns
// the written paths.
func saveAttachments(dir string, messages []types.Message) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var saved []string
	for _, msg := range messages {
		if msg.Attachment == nil {
			continue
		}
		data, err := core.DecodeAttachment(msg.Attachment)
		if err != nil {
			return saved, fmt.Errorf("decode %s: %w", msg.Attachment.Name, err)
		}
		path := filepath.Join(dir, filepath.Base(msg.Attachment.Name))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return saved, err
		}
		saved = append(saved, path)
	}
	return saved, nil
}

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Save a channel transcript as plain text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if _, err := ctx.RequireLogin(); err != nil {
				return writeCommandError(cmd, err)
			}

			public, _ := cmd.Flags().GetBool("public")
			output, _ := cmd.Flags().GetString("output")
			channel := channelFlag(public)

			snapshot, err := fetchSnapshot(cmd, ctx)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			now := time.Now()
			transcript := core.Transcript(channel, snapshot.Messages(channel), now)

			if output == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), transcript)
				return err
			}
			if output == "" {
				output = core.TranscriptFilename(channel, now)
			}
			if err := os.WriteFile(output, []byte(transcript), 0o644); err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"path": output, "channel": channel})
			}
			settings, err := db.LoadSettings(ctx.Store)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", core.T(settings.Language).Downloaded, output)
			return nil
		},
	}

	cmd.Flags().Bool("public", false, "export the public channel instead of support")
	cmd.Flags().StringP("output", "o", "", "output file, - for stdout (default vliz-<channel>-chat-<ms>.txt)")
	return cmd
}
