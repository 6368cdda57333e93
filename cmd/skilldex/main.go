package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halgrim/skilldex/internal/cache"
	"github.com/halgrim/skilldex/internal/config"
	"github.com/halgrim/skilldex/internal/embedding"
	"github.com/halgrim/skilldex/internal/harness"
	"github.com/halgrim/skilldex/internal/index"
	"github.com/halgrim/skilldex/internal/store"
	"github.com/halgrim/skilldex/internal/vectorstore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "skilldex",
		Short:         "Manage and query the skill index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default $CONFIG_PATH or configs/skilldex.json)")

	cmd.AddCommand(newSetupCmd(&cfgPath))
	cmd.AddCommand(newTeardownCmd(&cfgPath))
	cmd.AddCommand(newIngestCmd(&cfgPath))
	cmd.AddCommand(newSearchCmd(&cfgPath))
	cmd.AddCommand(newCheckIndexCmd(&cfgPath))
	return cmd
}

// openIndex wires the full index service from config. The returned close
// function releases every connection it opened.
func openIndex(cfgPath string) (*index.Service, func(), error) {
	_ = godotenv.Load()

	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	if cfgPath == "" {
		cfgPath = "configs/skilldex.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	logger, _ := zap.NewDevelopment()

	pgStore, err := store.New(cfg.Database.Postgres.DSN, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pgStore.Migrate(context.Background()); err != nil {
		pgStore.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	vectors, err := vectorstore.NewClient(vectorstore.QdrantConfig{
		Host: cfg.Database.Qdrant.Host,
		Port: cfg.Database.Qdrant.Port,
	})
	if err != nil {
		pgStore.Close()
		return nil, nil, fmt.Errorf("qdrant: %w", err)
	}

	embedder, err := embedding.NewProvider(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		vectors.Close()
		pgStore.Close()
		return nil, nil, err
	}

	var defCache *cache.DefinitionCache
	var idxCache index.DefinitionCache
	if cfg.Database.Redis.URL != "" {
		dc, cacheErr := cache.New(cfg.Database.Redis.URL, 0, logger)
		if cacheErr != nil {
			logger.Warn("redis unavailable, running without cache", zap.Error(cacheErr))
		} else {
			defCache = dc
			idxCache = dc
		}
	}

	svc := index.New(pgStore, idxCache, vectors, embedder, cfg.Index.Collection, logger)
	closeAll := func() {
		if defCache != nil {
			defCache.Close()
		}
		vectors.Close()
		pgStore.Close()
		logger.Sync()
	}
	return svc, closeAll, nil
}

func newSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the vector collection for the skill index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeAll, err := openIndex(*cfgPath)
			if err != nil {
				return err
			}
			defer closeAll()

			created, err := svc.Setup(cmd.Context())
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintln(cmd.OutOrStdout(), "collection created")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "collection already exists")
			}
			return nil
		},
	}
}

func newTeardownCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "teardown",
		Short: "Drop the vector collection and clear stored skills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeAll, err := openIndex(*cfgPath)
			if err != nil {
				return err
			}
			defer closeAll()

			dropped, err := svc.Teardown(cmd.Context())
			if err != nil {
				return err
			}
			if dropped {
				fmt.Fprintln(cmd.OutOrStdout(), "index dropped")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "index was already absent")
			}
			return nil
		},
	}
}

func newIngestCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Index every skill bundle under a catalog directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeAll, err := openIndex(*cfgPath)
			if err != nil {
				return err
			}
			defer closeAll()

			if _, err := svc.Setup(cmd.Context()); err != nil {
				return err
			}
			report, err := svc.Ingest(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d skill(s), %d failed\n", report.Indexed, report.Failed)
			for _, f := range report.Failures {
				fmt.Fprintf(cmd.OutOrStdout(), "  FAILED %s: %v\n", f.Dir, f.Err)
			}
			return nil
		},
	}
}

func newSearchCmd(cfgPath *string) *cobra.Command {
	var domain string
	var tags []string
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over indexed skills",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeAll, err := openIndex(*cfgPath)
			if err != nil {
				return err
			}
			defer closeAll()

			candidates, err := svc.Search(cmd.Context(), harness.Query{
				Text:   args[0],
				Domain: domain,
				Tags:   tags,
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matching skills")
				return nil
			}
			for _, c := range candidates {
				fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %-28s %-18s %s\n", c.Score, c.SkillID, c.Domain, c.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "restrict results to one domain")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "require a tag (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum number of candidates")
	return cmd
}

func newCheckIndexCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-index",
		Short: "Compare the vector collection with the definition store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeAll, err := openIndex(*cfgPath)
			if err != nil {
				return err
			}
			defer closeAll()

			status, err := svc.Describe(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "collection: %s (dimension %d, %d points)\n",
				status.Collection.Status, status.Collection.Dimension, status.Collection.PointsCount)
			fmt.Fprintf(cmd.OutOrStdout(), "stored definitions: %d\n", status.Stored)
			if status.Collection.PointsCount != uint64(status.Stored) {
				return fmt.Errorf("index drift: %d points vs %d stored definitions",
					status.Collection.PointsCount, status.Stored)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "index is consistent")
			return nil
		},
	}
}
