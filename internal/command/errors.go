package command

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/adamavenir/vliz/internal/auth"
	"github.com/spf13/cobra"
)

var errNotLoggedIn = errors.New("not logged in")

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())

	switch {
	case errors.Is(err, errNotLoggedIn):
		fmt.Fprintf(cmd.ErrOrStderr(), "Hint: Try: %s login\n", AppName)
	case errors.Is(err, auth.ErrDiscordNotConfigured):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: set DISCORD_CLIENT_ID and DISCORD_CLIENT_SECRET or discord.client_id in the config file")
	case isConnectionError(err):
		fmt.Fprintf(cmd.ErrOrStderr(), "Hint: is the backend running? Try: %s backend\n", AppName)
	}

	return reportedError{err}
}

// reportedError marks an error that was already written to the user.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// IsReported reports whether err was already printed by a command.
func IsReported(err error) bool {
	var reported reportedError
	return errors.As(err, &reported)
}

// isConnectionError reports whether err comes from an unreachable backend.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}
