package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loganventer/loganventerprofile-sub000/internal/corpus"
	"github.com/loganventer/loganventerprofile-sub000/internal/knowledge"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
	"github.com/loganventer/loganventerprofile-sub000/pkg/version"
)

var verbose bool

// newRootCmd returns the root command for the knowledge indexer.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "indexer",
		Short:         "Build and query the concierge knowledge index",
		Long:          "indexer chunks the embedded portfolio corpus, builds the BM25 index and writes the artifacts the concierge loads at startup.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newLogger() logging.Logger {
	logger := logging.NewLoggerWithService("indexer")
	if verbose {
		logger.SetLevel(logging.DebugLevel)
	}
	return logger
}

func newBuildCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Chunk the corpus and write chunks.json and bm25-index.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := corpus.Default()
			if err != nil {
				return err
			}
			chunks := knowledge.BuildChunks(p)
			ix := knowledge.BuildIndex(chunks)
			if err := knowledge.WriteArtifacts(out, chunks, ix); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d chunks (%d terms, avgdl %.2f) to %s\n",
				len(chunks), len(ix.IDF), ix.AvgDl, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "artifacts", "output directory")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var artifacts string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a query through the retrieval pipeline without an LLM",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := knowledge.Load(artifacts, nil, newLogger())
			if err != nil {
				return err
			}
			results := r.Retrieve(cmd.Context(), strings.Join(args, " "))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	cmd.Flags().StringVar(&artifacts, "artifacts", "", "artifacts directory (default: embedded corpus)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "indexer %s\n", version.String())
			return nil
		},
	}
}
