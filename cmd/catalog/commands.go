package main

import (
	"fmt"
	"io"
	"time"

	"github.com/DRSN-tech/product-matcher/internal/app"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/spf13/cobra"
)

func (c *cli) newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download catalog images that are missing locally",
		Long:  "Fetches img_url of every catalog row without a local image into IMAGES_DIR/<id>.<ext>.",
		RunE:  c.runDownload,
	}

	cmd.Flags().String("catalog", "", "catalog CSV path (default CATALOG_CSV)")

	return cmd
}

func (c *cli) runDownload(cmd *cobra.Command, _ []string) error {
	catalog, err := c.openCatalog(cmd, app.CatalogOptions{Backends: true})
	if err != nil {
		return err
	}
	defer catalog.Close()

	report, err := catalog.UC.DownloadImages(cmd.Context(), &usecase.DownloadImagesReq{
		CatalogPath: stringFlag(cmd, "catalog", c.cfg.Catalog.CSVPath),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "downloaded: %d\nalready present: %d\nlocal refs: %d\nmirrored: %d\n",
		report.Downloaded, report.Existing, report.Local, report.Mirrored)
	printWarnings(out, report.Warnings)
	return nil
}

func (c *cli) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the embedding store from the catalog",
		Long: "Reads the catalog CSV, embeds every product image and atomically writes the store file. " +
			"Rows without a readable image are skipped with a warning.",
		RunE: c.runBuild,
	}

	cmd.Flags().String("catalog", "", "catalog CSV path (default CATALOG_CSV)")
	cmd.Flags().String("store", "", "output store path (default STORE_PATH)")
	cmd.Flags().Bool("download", false, "download missing images before building")
	cmd.Flags().Bool("publish", false, "upload the built store to MinIO")

	return cmd
}

func (c *cli) runBuild(cmd *cobra.Command, _ []string) error {
	download, _ := cmd.Flags().GetBool("download")
	publish, _ := cmd.Flags().GetBool("publish")

	catalog, err := c.openCatalog(cmd, app.CatalogOptions{Extractor: true, Backends: true})
	if err != nil {
		return err
	}
	defer catalog.Close()

	report, err := catalog.UC.BuildAndPersist(cmd.Context(), &usecase.BuildReq{
		CatalogPath: stringFlag(cmd, "catalog", c.cfg.Catalog.CSVPath),
		StorePath:   stringFlag(cmd, "store", c.cfg.Store.Path),
		Download:    download,
		Publish:     publish,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "build %s written to %s\nmodel: %s (dim %d)\nrows: %d, embedded: %d, skipped: %d, took %s\n",
		report.BuildID, report.StorePath, report.Model, report.Dim,
		report.Total, report.Embedded, report.Skipped(),
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	printWarnings(out, report.Warnings)
	return nil
}

func (c *cli) newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the header and first records of a store file",
		RunE:  c.runInspect,
	}

	cmd.Flags().String("store", "", "store path (default STORE_PATH)")
	cmd.Flags().Int("limit", 5, "number of records to print")

	return cmd
}

func (c *cli) runInspect(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	catalog, err := c.openCatalog(cmd, app.CatalogOptions{})
	if err != nil {
		return err
	}
	defer catalog.Close()

	path := stringFlag(cmd, "store", c.cfg.Store.Path)
	store, err := catalog.Inspect(cmd.Context(), path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "store: %s\nbuild: %s\nmodel: %s\ndim: %d\ncount: %d\ncreated: %s\n",
		path, store.BuildID, store.Model, store.Dim, store.Count(), store.CreatedAt.Format(time.RFC3339))

	for _, rec := range store.Records[:min(max(limit, 0), store.Count())] {
		_, _ = fmt.Fprintf(out, "  %s\t%s\t%s\t%s\n", rec.ID, rec.Name, rec.Price, rec.URL)
	}
	return nil
}

func printWarnings(out io.Writer, warnings []usecase.BuildWarning) {
	if len(warnings) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "warnings (%d):\n", len(warnings))
	for _, w := range warnings {
		_, _ = fmt.Fprintf(out, "  row %s: %s\n", w.RowID, w.Reason)
	}
}
