package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rbruinekool/singularity/internal/dispatch"
	"github.com/rbruinekool/singularity/internal/store"
)

// PushOptions holds flags for the push command.
type PushOptions struct {
	*RootOptions
	IncludeState bool
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push <id>",
		Short: "Send a rundown item's payload to the renderer",
		Long: `Resolve the payload of a rundown item and send it to the renderer
without changing its state. With --state the item's current state is sent
as well.

Requires remote.baseURL.

Example:
  singularity push 3
  singularity push 3 --state`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.IncludeState, "state", false, "include the item's current state")

	return cmd
}

func runPush(opts *PushOptions, arg string, cmd *cobra.Command) error {
	id, err := parseRowID(arg)
	if err != nil {
		return err
	}

	s, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	if s.dispatcher == nil {
		return NewExitError(ExitCommandError, "remote.baseURL is not configured")
	}

	err = s.dispatcher.Push(cmd.Context(), id, dispatch.PushOptions{IncludeState: opts.IncludeState})
	if err != nil {
		code, exit := CodeRemote, ExitFailure
		if store.IsNotFound(err) {
			code, exit = CodeNotFound, ExitCommandError
		}
		if opts.Format == "json" {
			if ferr := opts.formatter(cmd).Error(code, err.Error(), nil); ferr != nil {
				return ferr
			}
		}
		return WrapExitError(exit, "push failed", err)
	}
	return opts.formatter(cmd).Success(fmt.Sprintf("Pushed row %d", id))
}
