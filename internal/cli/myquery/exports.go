package myquery

import (
	"github.com/spf13/cobra"

	"github.com/myquery/myquery/internal/export"
	s3store "github.com/myquery/myquery/internal/storage/s3"
)

type exportFlags struct {
	formats string
	name    string
	dir     string
}

func (a *app) bindExportFlags(cmd *cobra.Command, f *exportFlags) {
	cmd.Flags().StringVar(&f.formats, "export", "", "write results to files: csv, json, parquet, a comma list or all")
	cmd.Flags().StringVar(&f.name, "export-name", "", "base file name (default query_export_<timestamp>)")
	cmd.Flags().StringVar(&f.dir, "output-dir", a.opts.Config.Export.Dir, "local export directory, ignored when the object store is enabled")
}

// exportTarget prefers the configured object store over the local directory.
func (a *app) exportTarget(cmd *cobra.Command, dir string) (export.Target, error) {
	if a.opts.ObjectStore != nil {
		return export.ObjectTarget{Store: a.opts.ObjectStore}, nil
	}
	if a.opts.Config.ObjectStore.Enabled {
		store, err := s3store.New(cmd.Context(), a.opts.Config.ObjectStore)
		if err != nil {
			return nil, err
		}
		return export.ObjectTarget{Store: store}, nil
	}
	return export.DirTarget{Dir: dir}, nil
}

func (a *app) exporter(cmd *cobra.Command, dir string) (*export.Exporter, error) {
	target, err := a.exportTarget(cmd, dir)
	if err != nil {
		return nil, err
	}
	return export.New(target, a.logger), nil
}

func (a *app) export(cmd *cobra.Command, f exportFlags, table export.Table) error {
	formats, err := export.ParseFormats(f.formats)
	if err != nil {
		return err
	}
	exporter, err := a.exporter(cmd, f.dir)
	if err != nil {
		return err
	}
	files, err := exporter.Export(cmd.Context(), table, formats, f.name)
	renderExports(cmd.OutOrStdout(), files)
	return err
}
