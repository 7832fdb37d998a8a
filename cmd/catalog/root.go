package main

import (
	"github.com/DRSN-tech/product-matcher/internal/app"
	config "github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/jimlawless/whereami"
	"github.com/spf13/cobra"
)

// cli хранит общие для подкоманд логгер и конфигурацию.
type cli struct {
	log logger.Logger
	cfg *config.Config
}

// NewRootCmd создает команду catalog со всеми подкомандами.
func NewRootCmd(log logger.Logger) *cobra.Command {
	c := &cli{log: log}

	root := &cobra.Command{
		Use:           "catalog",
		Short:         "Offline catalog preparation for the product matcher",
		Long:          "Downloads catalog images, builds the embedding store and inspects built stores.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(c.log)
			if err != nil {
				return e.Wrap(whereami.WhereAmI(), err)
			}
			c.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		c.newDownloadCmd(),
		c.newBuildCmd(),
		c.newInspectCmd(),
	)

	return root
}

func (c *cli) openCatalog(cmd *cobra.Command, opts app.CatalogOptions) (*app.Catalog, error) {
	catalog, err := app.NewCatalog(cmd.Context(), c.cfg, opts, c.log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	return catalog, nil
}

// stringFlag возвращает значение флага или fallback, если флаг не задан.
func stringFlag(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}
