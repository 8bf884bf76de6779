package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/fieldstream/pkg/cli"
	"github.com/haivivi/fieldstream/pkg/records"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect records saved by the relay",
	Long: `Inspect the record store written by 'fieldstream serve'.

The store lives in ~/.fieldstream/fieldstream/data/records unless --store-dir
is given. The server must not be running on the same directory.`,
}

var recordsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List records, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRecordStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tFIELDS")
		n := 0
		for rec, err := range store.List(cmd.Context()) {
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				rec.ID,
				rec.CreatedAt.Local().Format(time.DateTime),
				strings.Join(rec.Names(), ","))
			n++
			if limit > 0 && n >= limit {
				break
			}
		}
		return w.Flush()
	},
}

type recordResult struct {
	ID        string     `json:"id" yaml:"id"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	Fields    cli.Fields `json:"fields" yaml:"fields"`
}

var recordsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRecordStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, records.ErrNotFound) {
			return fmt.Errorf("record %q not found", args[0])
		}
		if err != nil {
			return err
		}
		return outputResult(recordResult{
			ID:        rec.ID,
			CreatedAt: rec.CreatedAt,
			Fields:    cli.Fields(rec.Fields),
		})
	},
}

var recordsDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a record and its local export",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRecordStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		id := args[0]
		if err := store.Delete(cmd.Context(), id); err != nil {
			return err
		}
		if err := removeExport(cmd.Context(), cmd, id); err != nil {
			cli.PrintWarning("export of %s: %v", id, err)
		}
		cli.PrintSuccess("Record %q deleted", id)
		return nil
	},
}

func init() {
	recordsCmd.PersistentFlags().String("store-dir", "", "record store directory")
	recordsCmd.PersistentFlags().String("export-dir", "", "local export directory")
	recordsListCmd.Flags().Int("limit", 0, "show at most this many records")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsGetCmd)
	recordsCmd.AddCommand(recordsDeleteCmd)
}

func openRecordStore(cmd *cobra.Command) (*records.Badger, error) {
	dir, _ := cmd.Flags().GetString("store-dir")
	if dir == "" {
		paths, err := cli.NewPaths(appName)
		if err != nil {
			return nil, err
		}
		dir = paths.RecordsDir()
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("record store %s: %w", dir, err)
	}
	return records.NewBadger(records.BadgerOptions{Dir: dir})
}

func removeExport(ctx context.Context, cmd *cobra.Command, id string) error {
	dir, _ := cmd.Flags().GetString("export-dir")
	if dir == "" {
		paths, err := cli.NewPaths(appName)
		if err != nil {
			return err
		}
		dir = paths.ExportDir()
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	files, err := records.NewLocal(dir)
	if err != nil {
		return err
	}
	exp := &records.Exporter{Files: files}
	if ok, err := exp.Exported(ctx, id); err != nil || !ok {
		return err
	}
	return exp.Remove(ctx, id)
}
