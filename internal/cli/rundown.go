package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rbruinekool/singularity/internal/model"
)

// RundownOptions holds flags for the rundown add command.
type RundownOptions struct {
	*RootOptions
	AppToken         string
	SubCompositionID string
}

// NewRundownCommand creates the rundown command group.
func NewRundownCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rundown",
		Short: "Edit ordered collections",
		Long: `Inspect and edit the ordered collections: rundown, variables and tables.

Writes go through the same store transactions as the server. A status
change on a rundown item is dispatched to the renderer when remote.baseURL
is configured.`,
	}

	cmd.AddCommand(newRundownListCommand(rootOpts))
	cmd.AddCommand(newRundownAddCommand(rootOpts))
	cmd.AddCommand(newRundownDuplicateCommand(rootOpts))
	cmd.AddCommand(newRundownMoveCommand(rootOpts))
	cmd.AddCommand(newRundownDeleteCommand(rootOpts))
	cmd.AddCommand(newRundownRenumberCommand(rootOpts))
	cmd.AddCommand(newRundownSetCommand(rootOpts))

	return cmd
}

func newRundownListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <collection>",
		Short:         "List rows in order",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCollection(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.store.Rows(cmd.Context(), c)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list rows", err)
			}
			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(rows)
			}
			return printRows(cmd.OutOrStdout(), rows)
		},
	}
}

func newRundownAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RundownOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <collection> [column=value...]",
		Short: "Insert a row at the front",
		Long: `Insert a row at order 0, shifting every other row down by one.

With --token and --subcomp the row is seeded from the subcomposition's field
defaults and linked to the connection. Extra column=value pairs are applied
on top; values are read as JSON scalars and fall back to strings.

Example:
  singularity rundown add rundown --token tok-1 --subcomp sc-lower title=Breaking
  singularity rundown add variables name=score home=0`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRundownAdd(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.AppToken, "token", "", "connection app token to seed from")
	cmd.Flags().StringVar(&opts.SubCompositionID, "subcomp", "", "subcomposition id to seed from")

	return cmd
}

func runRundownAdd(opts *RundownOptions, args []string, cmd *cobra.Command) error {
	c, err := parseCollection(args[0])
	if err != nil {
		return err
	}
	extra, err := parseCellArgs(args[1:])
	if err != nil {
		return err
	}
	if (opts.AppToken == "") != (opts.SubCompositionID == "") {
		return NewExitError(ExitCommandError, "--token and --subcomp must be given together")
	}

	s, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	cells := model.Cells{}
	if opts.AppToken != "" {
		conn, err := s.store.Connection(ctx, opts.AppToken)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to load connection", err)
		}
		if cells, err = conn.ItemCells(opts.SubCompositionID); err != nil {
			return WrapExitError(ExitFailure, "failed to seed item", err)
		}
	}
	for k, v := range extra {
		cells[k] = v
	}

	id, err := s.store.InsertAtFront(ctx, c, cells)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to insert row", err)
	}
	s.settle(ctx)
	return reportID(opts.RootOptions, cmd, "Inserted", id)
}

func newRundownDuplicateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "duplicate <collection> <id>",
		Short:         "Copy a row directly after itself",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCollection(args[0])
			if err != nil {
				return err
			}
			id, err := parseRowID(args[1])
			if err != nil {
				return err
			}
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			newID, err := s.store.Duplicate(cmd.Context(), c, id)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to duplicate row", err)
			}
			s.settle(cmd.Context())
			return reportID(rootOpts, cmd, "Duplicated", newID)
		},
	}
}

func newRundownMoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <collection> <from-id> <to-id>",
		Short: "Move a row to another row's position",
		Long: `Move the row <from-id> into the position held by <to-id> and renumber
the collection.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCollection(args[0])
			if err != nil {
				return err
			}
			from, err := parseRowID(args[1])
			if err != nil {
				return err
			}
			to, err := parseRowID(args[2])
			if err != nil {
				return err
			}
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.Move(cmd.Context(), c, from, to); err != nil {
				return WrapExitError(ExitFailure, "failed to move row", err)
			}
			s.settle(cmd.Context())
			return rootOpts.formatter(cmd).Success(fmt.Sprintf("Moved row %d", from))
		},
	}
}

func newRundownDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <collection> <id>",
		Short:         "Delete a row",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCollection(args[0])
			if err != nil {
				return err
			}
			id, err := parseRowID(args[1])
			if err != nil {
				return err
			}
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.Delete(cmd.Context(), c, id); err != nil {
				return WrapExitError(ExitFailure, "failed to delete row", err)
			}
			s.settle(cmd.Context())
			return rootOpts.formatter(cmd).Success(fmt.Sprintf("Deleted row %d", id))
		},
	}
}

func newRundownRenumberCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "renumber <collection>",
		Short:         "Compact orders to 0..n-1",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCollection(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.Renumber(cmd.Context(), c); err != nil {
				return WrapExitError(ExitFailure, "failed to renumber", err)
			}
			s.settle(cmd.Context())
			return rootOpts.formatter(cmd).Success(fmt.Sprintf("Renumbered %s", c))
		},
	}
}

func newRundownSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <collection> <id> column=value...",
		Short: "Write cells on a row",
		Long: `Write one or more cells on a row. Setting status on a rundown item
(Out1, In or Out2) triggers a dispatch.

Example:
  singularity rundown set rundown 3 status=In
  singularity rundown set variables 1 home=2 away=1`,
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCollection(args[0])
			if err != nil {
				return err
			}
			id, err := parseRowID(args[1])
			if err != nil {
				return err
			}
			cells, err := parseCellArgs(args[2:])
			if err != nil {
				return err
			}
			if st, ok := cells[model.ColumnStatus]; ok && c == model.Rundown {
				if _, valid := model.ParseState(st); !valid {
					return NewExitError(ExitCommandError,
						fmt.Sprintf("invalid state %v: must be one of Out1, In, Out2", st))
				}
			}

			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.MergeCells(cmd.Context(), c, id, cells); err != nil {
				return WrapExitError(ExitFailure, "failed to set cells", err)
			}
			s.settle(cmd.Context())
			return rootOpts.formatter(cmd).Success(fmt.Sprintf("Updated row %d", id))
		},
	}
}

func parseCollection(arg string) (model.Collection, error) {
	c := model.Collection(arg)
	if !c.Valid() {
		return "", NewExitError(ExitCommandError,
			fmt.Sprintf("unknown collection %q: must be one of %v", arg, model.Collections))
	}
	return c, nil
}

func parseRowID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid row id %q", arg))
	}
	return id, nil
}

// parseCellArgs reads column=value pairs. Values that decode as a JSON
// scalar keep their type; anything else is taken as a literal string.
func parseCellArgs(args []string) (model.Cells, error) {
	cells := make(model.Cells, len(args))
	for _, arg := range args {
		col, raw, ok := strings.Cut(arg, "=")
		if !ok || col == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid cell %q: want column=value", arg))
		}
		cells[col] = parseCellValue(raw)
	}
	return cells, nil
}

func parseCellValue(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() || !model.IsScalar(v) {
		return raw
	}
	return model.NormalizeNumber(v)
}

type idResult struct {
	ID int64 `json:"id"`
}

func reportID(opts *RootOptions, cmd *cobra.Command, verb string, id int64) error {
	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(idResult{ID: id})
	}
	return f.Success(fmt.Sprintf("%s row %d", verb, id))
}

func printRows(w io.Writer, rows []model.Row) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(empty)")
		return nil
	}
	fmt.Fprintf(w, "%-6s %-6s %s\n", "ID", "ORDER", "CELLS")
	for _, row := range rows {
		cells, err := json.Marshal(row.Cells)
		if err != nil {
			return fmt.Errorf("render row %d: %w", row.ID, err)
		}
		fmt.Fprintf(w, "%-6d %-6d %s\n", row.ID, row.Order, cells)
	}
	return nil
}
