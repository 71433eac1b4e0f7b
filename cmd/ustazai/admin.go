package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erkebulan/ustazai/internal/domain/ports"
)

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load knowledge files into the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false, false)
			if err != nil {
				return err
			}
			defer a.close()

			written, err := a.loadKnowledge(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Info("knowledge loaded", zap.Int("documents_written", written))
			return nil
		},
	}
}

func newResetKnowledgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-knowledge",
		Short: "Drop and reload the knowledge namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false, false)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.ingestor.Reset(cmd.Context()); err != nil {
				return err
			}
			written, err := a.loadKnowledge(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Info("knowledge reset", zap.Int("documents_written", written))
			return nil
		},
	}
}

func newClearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Drop all memoized answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false, false)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cache.Clear(cmd.Context()); err != nil {
				return err
			}
			a.log.Info("cache cleared")
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print index document counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false, false)
			if err != nil {
				return err
			}
			defer a.close()

			knowledge, err := a.index.Count(cmd.Context(), ports.NamespaceKnowledge)
			if err != nil {
				return err
			}
			cached, err := a.index.Count(cmd.Context(), ports.NamespaceCache)
			if err != nil {
				return err
			}
			fmt.Printf("knowledge documents: %d\ncached answers: %d\n", knowledge, cached)
			return nil
		},
	}
}
