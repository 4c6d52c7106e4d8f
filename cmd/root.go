package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/statement-mapper/internal/config"
	"github.com/sells-group/statement-mapper/internal/registry"
	"github.com/sells-group/statement-mapper/internal/store"
	"github.com/sells-group/statement-mapper/pkg/semantic"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "statement-mapper",
	Short: "Maps extracted financial statement facts into spreadsheet templates",
	Long:  "Normalizes extracted statement evidence, profiles an xlsx template's writable slots, assigns facts deterministically, reconciles accounting identities, and writes a fully audited output workbook.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// loadRegistry loads the synonym table from Notion when configured, else from
// the YAML path, else the bundled table.
func loadRegistry(ctx context.Context) (*registry.SynonymTable, error) {
	switch {
	case cfg.Registry.NotionToken != "" && cfg.Registry.NotionDB != "":
		return registry.LoadFromNotion(ctx, cfg.Registry.NotionToken, cfg.Registry.NotionDB)
	case cfg.Registry.YAMLPath != "":
		return registry.LoadFromYAML(cfg.Registry.YAMLPath)
	default:
		return registry.Default()
	}
}

// newSemanticClient returns a semantic client when an API key is configured,
// else nil. The pipeline treats nil as semantic scoring disabled.
func newSemanticClient() semantic.Client {
	if cfg.Semantic.Key == "" {
		return nil
	}
	return semantic.NewClient(cfg.Semantic.Key)
}
