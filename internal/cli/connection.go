package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rbruinekool/singularity/internal/connection"
	"github.com/rbruinekool/singularity/internal/model"
)

// ConnectionSummary is one connection in list output.
type ConnectionSummary struct {
	AppToken        string   `json:"appToken"`
	Label           string   `json:"label"`
	SubCompositions []string `json:"subCompositions"`
}

// NewConnectionCommand creates the connection command group.
func NewConnectionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection",
		Short: "Manage renderer connections",
	}

	cmd.AddCommand(newConnectionImportCommand(rootOpts))
	cmd.AddCommand(newConnectionListCommand(rootOpts))
	cmd.AddCommand(newConnectionDeleteCommand(rootOpts))

	return cmd
}

func newConnectionImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Validate and store a connection document",
		Long: `Validate a connection document (.json, .jsonc or .cue) and store it,
replacing any connection with the same app token.

Example:
  singularity connection import ./studio-a.jsonc`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			conn, err := connection.Import(cmd.Context(), s.store, args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to import connection", err)
			}
			summary, err := summarize(conn)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read schema", err)
			}
			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(summary)
			}
			return rootOpts.formatter(cmd).Success(fmt.Sprintf("Imported %s (%s) with %d subcompositions",
				conn.AppToken, conn.Label, len(summary.SubCompositions)))
		},
	}
}

func newConnectionListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored connections",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			conns, err := s.store.Connections(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list connections", err)
			}
			out := make([]ConnectionSummary, 0, len(conns))
			for _, c := range conns {
				// A broken schema still lists, without subcompositions.
				summary, _ := summarize(c)
				out = append(out, summary)
			}

			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(out)
			}
			w := cmd.OutOrStdout()
			if len(out) == 0 {
				fmt.Fprintln(w, "No connections.")
				return nil
			}
			for _, c := range out {
				fmt.Fprintf(w, "%s\t%s\t%v\n", c.AppToken, c.Label, c.SubCompositions)
			}
			return nil
		},
	}
}

func newConnectionDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <app-token>",
		Short:         "Remove a stored connection",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.DeleteConnection(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitFailure, "failed to delete connection", err)
			}
			return rootOpts.formatter(cmd).Success(fmt.Sprintf("Deleted connection %s", args[0]))
		},
	}
}

// summarize lists every subcomposition id in the connection's schema,
// nested ones included, depth first.
func summarize(conn model.Connection) (ConnectionSummary, error) {
	summary := ConnectionSummary{AppToken: conn.AppToken, Label: conn.Label, SubCompositions: []string{}}
	schema, err := conn.Schema()
	if err != nil {
		return summary, err
	}
	var walk func([]model.SubComposition)
	walk = func(list []model.SubComposition) {
		for _, sc := range list {
			summary.SubCompositions = append(summary.SubCompositions, sc.ID)
			walk(sc.SubCompositions)
		}
	}
	walk(schema.SubCompositions)
	return summary, nil
}
