package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jacentio/refguard/dao"
	"github.com/jacentio/refguard/entities"
	"github.com/jacentio/refguard/store"
)

// readInput returns arg, or stdin when arg is "-".
func readInput(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read stdin", err)
	}
	return b, nil
}

func newInsertCommand(opts *RootOptions) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "insert <type> <json|->",
		Short: "Insert an entity and reserve its unique value",
		Example: `  refguard insert partner '{"name":"Acme","email":"ops@acme.test"}'
  refguard insert currency --id eur '{"code":"EUR","symbol":"€"}'`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				c, err := s.collection(args[0])
				if err != nil {
					return err
				}
				var insertOpts []dao.InsertOption
				if id != "" {
					insertOpts = append(insertOpts, dao.WithID(id))
				}
				rec, err := c.InsertJSON(ctx, doc, insertOpts...)
				if err != nil {
					return err
				}
				return s.out.Record(c.Type(), rec)
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "entity id (generated when empty)")
	return cmd
}

func newGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Print an entity by id",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				c, err := s.collection(args[0])
				if err != nil {
					return err
				}
				rec, err := c.GetJSON(ctx, args[1])
				if err != nil {
					return err
				}
				return s.out.Record(c.Type(), rec)
			})
		},
	}
}

type updateResult struct {
	ID      string        `json:"id"`
	Version store.Version `json:"version"`
}

func newUpdateCommand(opts *RootOptions) *cobra.Command {
	var ifVersion uint64

	cmd := &cobra.Command{
		Use:   "update <type> <id> <json-patch|->",
		Short: "Apply a partial update, moving the unique reservation on rename",
		Example: `  refguard update partner 6f1c... '{"name":"Acme Holdings"}'
  refguard update partner 6f1c... --if-version 42 '{"note":"renewed"}'`,
		Args: exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := readInput(cmd, args[2])
			if err != nil {
				return err
			}
			var updateOpts []dao.UpdateOption
			if cmd.Flags().Changed("if-version") {
				updateOpts = append(updateOpts, dao.IfVersion(store.Version(ifVersion)))
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				c, err := s.collection(args[0])
				if err != nil {
					return err
				}
				v, err := c.UpdateJSON(ctx, args[1], patch, updateOpts...)
				if err != nil {
					return err
				}
				res := updateResult{ID: args[1], Version: v}
				return s.out.Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "updated %s %s (version %d)\n", c.Type(), res.ID, res.Version)
				})
			})
		},
	}

	cmd.Flags().Uint64Var(&ifVersion, "if-version", 0, "fail unless the stored version matches")
	return cmd
}

type removeResult struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

func newRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <type> <id>",
		Short: "Remove an entity and release its unique value",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				c, err := s.collection(args[0])
				if err != nil {
					return err
				}
				if err := c.Remove(ctx, args[1]); err != nil {
					return err
				}
				return s.out.Success(removeResult{ID: args[1], Removed: true}, func(w io.Writer) {
					fmt.Fprintf(w, "removed %s %s\n", c.Type(), args[1])
				})
			})
		},
	}
}

func newLookupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <type> <value>",
		Short: "Find an entity by its unique value",
		Long: `Find an entity by its unique value. The value is normalized the same
way reservations are, so case and surrounding whitespace do not matter.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				c, err := s.collection(args[0])
				if err != nil {
					return err
				}
				if c.UniqueField() == "" {
					return NewExitError(ExitCommandError, fmt.Sprintf("%s has no unique field", c.Type()))
				}
				rec, err := c.FindJSON(ctx, args[1])
				if err != nil {
					return err
				}
				return s.out.Record(c.Type(), rec)
			})
		},
	}
}

type typeInfo struct {
	Type        string `json:"type"`
	UniqueField string `json:"unique_field,omitempty"`
}

func newTypesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List entity types and their unique fields",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			set := entities.New(store.NewMemory(), dao.Options{})

			var infos []typeInfo
			for _, c := range set.Registry.All() {
				infos = append(infos, typeInfo{Type: c.Type(), UniqueField: c.UniqueField()})
			}

			out := &Output{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(infos, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TYPE\tUNIQUE FIELD")
				for _, info := range infos {
					field := info.UniqueField
					if field == "" {
						field = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\n", info.Type, field)
				}
				_ = tw.Flush()
			})
		},
	}
}
