package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/engine"
	"github.com/adamavenir/vliz/internal/types"
	"github.com/spf13/cobra"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream messages in real-time",
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

			last, _ := cmd.Flags().GetInt("last")
			public, _ := cmd.Flags().GetBool("public")
			all, _ := cmd.Flags().GetBool("all")
			notify, _ := cmd.Flags().GetBool("notify")

			channels := []types.Channel{channelFlag(public)}
			if all {
				channels = []types.Channel{types.ChannelSupport, types.ChannelPublic}
			}
			printer := &streamPrinter{
				out:      cmd.OutOrStdout(),
				jsonMode: ctx.JSONMode,
				channels: channels,
				last:     last,
				printed:  map[types.Channel]int{},
			}
			if !ctx.JSONMode {
				fmt.Fprintln(printer.out, "--- watching (Ctrl+C to stop) ---")
			}

			err = runSession(cmd, ctx, func(runCtx context.Context, notice string) error {
				settings, err := db.LoadSettings(ctx.Store)
				if err != nil {
					return err
				}
				printer.text = core.T(settings.Language)
				if notice != "" {
					printer.notice(notice)
				}

				client, err := ctx.NewClient()
				if err != nil {
					return err
				}
				opts := engine.Options{
					Log:          client,
					Store:        ctx.Store,
					Logger:       ctx.Logger,
					Language:     settings.Language,
					Active:       channels[0],
					SoundEnabled: settings.SoundEnabled,
				}
				if notify {
					opts.Notifier = engine.DesktopNotifier{}
				}
				var eng *engine.Engine
				opts.Publish = func(snapshot engine.Snapshot) {
					printer.publish(snapshot, eng.IsMine)
				}
				eng, err = engine.New(opts)
				if err != nil {
					return err
				}
				return eng.Run(runCtx, ctx.Config.Interval())
			})
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().Int("last", 10, "show last N messages per channel before streaming")
	cmd.Flags().Bool("public", false, "watch the public channel instead of support")
	cmd.Flags().Bool("all", false, "watch both channels")
	cmd.Flags().Bool("notify", false, "desktop notifications for new messages")
	return cmd
}

// streamPrinter writes the messages a snapshot adds since the previous one.
// It survives session reloads so nothing is printed twice.
type streamPrinter struct {
	out      io.Writer
	jsonMode bool
	channels []types.Channel
	last     int
	text     core.Strings
	printed  map[types.Channel]int
	started  bool
}

func (p *streamPrinter) publish(snapshot engine.Snapshot, isMine func(string) bool) {
	for _, channel := range p.channels {
		messages := snapshot.Messages(channel)
		start, seen := p.printed[channel]
		if !p.started {
			start = len(messages) - p.last
			if start < 0 || p.last < 0 {
				start = 0
			}
		} else if !seen || start > len(messages) {
			start = len(messages)
		}
		for _, msg := range messages[start:] {
			p.print(msg, isMine(core.DisplayText(msg)))
		}
		p.printed[channel] = len(messages)
	}
	p.started = true
}

func (p *streamPrinter) print(msg types.Message, mine bool) {
	if p.jsonMode {
		_ = json.NewEncoder(p.out).Encode(newMessageRecord(msg, mine))
		return
	}
	fmt.Fprintln(p.out, FormatMessage(msg, mine, p.text))
}

func (p *streamPrinter) notice(text string) {
	if p.jsonMode {
		_ = json.NewEncoder(p.out).Encode(map[string]string{"notice": text})
		return
	}
	fmt.Fprintf(p.out, "--- %s ---\n", text)
}
