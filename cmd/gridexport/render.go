package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	exportzap "github.com/goliatone/go-gridexport/adapters/logger/zap"
	"github.com/goliatone/go-gridexport/export"
	"github.com/goliatone/go-gridexport/gridspec"
	exportmemory "github.com/goliatone/go-gridexport/sources/memory"
)

type renderOptions struct {
	columns      string
	data         string
	template     string
	title        string
	sheet        int
	timezone     string
	placeholders []string
	out          string
}

func newRenderCmd(a *app) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a JSON data file into a workbook",
		Long: `Reads columns from a YAML file and rows from a JSON array of objects, then
fills the template placeholders. Without --template the built-in layout is used.

Example:
  gridexport render --columns cols.yaml --data rows.json --title "Q3" \
    --placeholder org=Acme --out q3.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRender(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.columns, "columns", "", "YAML column definitions")
	flags.StringVar(&opts.data, "data", "-", "JSON array of rows, - reads stdin")
	flags.StringVar(&opts.template, "template", "", "Excel template file")
	flags.StringVar(&opts.title, "title", "", "Title written into the title placeholder")
	flags.IntVar(&opts.sheet, "sheet", 0, "Template sheet index")
	flags.StringVar(&opts.timezone, "timezone", "", "IANA timezone for date values")
	flags.StringArrayVar(&opts.placeholders, "placeholder", nil, "Extra placeholder as key=value, repeatable")
	flags.StringVarP(&opts.out, "out", "o", "", "Output workbook, - writes stdout")
	_ = cmd.MarkFlagRequired("columns")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) runRender(cmd *cobra.Command, opts *renderOptions) error {
	raw, err := os.ReadFile(opts.columns)
	if err != nil {
		return err
	}
	columns, err := gridspec.ParseColumns(raw)
	if err != nil {
		return err
	}

	items, err := readItems(cmd.InOrStdin(), opts.data)
	if err != nil {
		return err
	}

	placeholders, err := parsePlaceholders(opts.placeholders)
	if err != nil {
		return err
	}

	exporter := &export.Exporter{
		Grid: export.Grid{
			Columns:  columns,
			Provider: exportmemory.NewListProvider(items...),
		},
		Options: export.Options{
			Title:                  opts.title,
			SheetIndex:             opts.sheet,
			AdditionalPlaceholders: placeholders,
			Format:                 export.FormatOptions{Timezone: opts.timezone},
		},
		Logger: exportzap.New(a.logger).Named("render"),
	}
	if opts.template != "" {
		exporter.Templates = export.FSTemplates{FS: os.DirFS(filepath.Dir(opts.template))}
		exporter.Options.Template = filepath.Base(opts.template)
	}

	var (
		w    io.Writer = cmd.OutOrStdout()
		file *os.File
	)
	if opts.out != "-" {
		file, err = os.Create(opts.out)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}

	stats, err := exporter.Export(cmd.Context(), w)
	if err != nil {
		return err
	}
	if file != nil {
		if err := file.Close(); err != nil {
			return err
		}
	}
	a.logger.Sugar().Infow("workbook rendered", "out", opts.out, "rows", stats.Rows, "bytes", stats.Bytes)
	return nil
}

func readItems(stdin io.Reader, path string) ([]any, error) {
	if path == "-" {
		return gridspec.LoadItems(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return gridspec.LoadItems(f)
}

func parsePlaceholders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid placeholder %q, expected key=value", value)
		}
		out[export.PlaceholderToken(key)] = val
	}
	return out, nil
}
