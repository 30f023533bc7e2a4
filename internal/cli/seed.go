package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jacentio/refguard/dao"
	"github.com/jacentio/refguard/dberr"
)

// seedGroup is one entry of a seed file:
//
//	- type: currency
//	  records:
//	    - id: eur
//	      code: EUR
//	      symbol: "€"
type seedGroup struct {
	Type    string           `yaml:"type"`
	Records []map[string]any `yaml:"records"`
}

type seedResult struct {
	Type     string `json:"type"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
}

func newSeedCommand(opts *RootOptions) *cobra.Command {
	var skipExisting bool

	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Insert fixture entities from a YAML file",
		Long: `Insert fixture entities from a YAML file. Groups are inserted in file
order; a record's optional "id" becomes the entity id. Seeding stops at the
first failure unless the failure is an existing record and --skip-existing
is set.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := loadSeedFile(args[0])
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				results, err := seed(ctx, s, groups, skipExisting)
				if err != nil {
					return err
				}
				return s.out.Success(results, func(w io.Writer) {
					for _, r := range results {
						fmt.Fprintf(w, "%s: %d inserted, %d skipped\n", r.Type, r.Inserted, r.Skipped)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "skip records whose id or unique value is taken")
	return cmd
}

func loadSeedFile(path string) ([]seedGroup, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read seed file", err)
	}
	var groups []seedGroup
	if err := yaml.Unmarshal(b, &groups); err != nil {
		return nil, WrapExitError(ExitCommandError, "parse seed file "+path, err)
	}
	return groups, nil
}

func seed(ctx context.Context, s *session, groups []seedGroup, skipExisting bool) ([]seedResult, error) {
	results := make([]seedResult, 0, len(groups))
	for _, g := range groups {
		c, err := s.collection(g.Type)
		if err != nil {
			return nil, err
		}

		res := seedResult{Type: g.Type}
		for i, record := range g.Records {
			var opts []dao.InsertOption
			if id, ok := record["id"]; ok {
				opts = append(opts, dao.WithID(fmt.Sprint(id)))
				delete(record, "id")
			}

			doc, err := json.Marshal(record)
			if err != nil {
				return nil, fmt.Errorf("seed %s record %d: %w", g.Type, i, err)
			}

			_, err = c.InsertJSON(ctx, doc, opts...)
			switch {
			case err == nil:
				res.Inserted++
			case skipExisting && dberr.Is(err, dberr.DuplicateUnique):
				s.logger.Debug("seed record exists", "type", g.Type, "index", i)
				res.Skipped++
			default:
				return nil, fmt.Errorf("seed %s record %d: %w", g.Type, i, err)
			}
		}
		results = append(results, res)
	}
	return results, nil
}
