package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rbruinekool/singularity/internal/reconcile"
)

// NewPatchCommand creates the patch command.
func NewPatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "patch <file|->",
		Short: "Apply a batch of patch items to the rundown",
		Long: `Apply a JSON array of patch items, the same body PATCH /control accepts.
Either every item is applied in one transaction or nothing is written.

Exit codes:
  0 - Batch applied
  1 - Batch rejected (validation or transaction failure)
  2 - Command error (unreadable file, invalid JSON, etc.)

Example:
  singularity patch ./batch.json
  echo '[{"id":3,"state":"In"}]' | singularity patch -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPatch(rootOpts, args[0], cmd)
		},
	}
}

func runPatch(opts *RootOptions, path string, cmd *cobra.Command) error {
	body, err := readInput(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read patch", err)
	}

	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := reconcile.New(s.store).Apply(cmd.Context(), body)
	var ve *reconcile.ValidationError
	switch {
	case err == nil:
	case errors.Is(err, reconcile.ErrInvalidJSON):
		return WrapExitError(ExitCommandError, "failed to parse patch", err)
	case errors.As(err, &ve):
		if err := reportRejection(opts, cmd, ve.Details); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("patch rejected: %d invalid items", len(ve.Details)))
	default:
		return WrapExitError(ExitFailure, "failed to apply patch", err)
	}

	s.settle(cmd.Context())
	if opts.Format == "json" {
		return opts.formatter(cmd).Success(res)
	}
	return opts.formatter(cmd).Success(res.Message())
}

// reportRejection writes the per-item validation messages to stdout.
func reportRejection(opts *RootOptions, cmd *cobra.Command, details []string) error {
	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Error(CodeValidation, "patch rejected", details)
	}
	if err := f.Error(CodeValidation, "patch rejected", nil); err != nil {
		return err
	}
	for _, d := range details {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", d)
	}
	return nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
