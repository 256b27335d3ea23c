// Command kbctl manages a construction-plan knowledge base: curating
// documents into it, inspecting chapter classification, querying fused
// retrieval, and reporting store statistics.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	buildkb "github.com/buildkb/buildkb"
	"github.com/buildkb/buildkb/retrieve"
)

var (
	flagConfig   string
	flagDB       string
	flagLogLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "kbctl",
		Short:         "Curate and query a construction-plan knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(flagLogLevel)
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "database path override")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "debug, info, warn, error")

	root.AddCommand(curateCmd(), classifyCmd(), retrieveCmd(), statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kbctl:", err)
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

func loadConfig() (buildkb.Config, error) {
	cfg := buildkb.DefaultConfig()
	if flagConfig != "" {
		var err error
		if cfg, err = buildkb.LoadConfig(flagConfig); err != nil {
			return cfg, err
		}
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	return cfg, nil
}

func openPipeline() (buildkb.Pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildkb.New(cfg)
}

func curateCmd() *cobra.Command {
	var (
		domain    string
		force     bool
		rulesOnly bool
	)
	cmd := &cobra.Command{
		Use:   "curate <file>...",
		Short: "Parse, classify, embed, and extract documents into the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			var opts []buildkb.CurateOption
			if domain != "" {
				opts = append(opts, buildkb.WithDomain(domain))
			}
			if force {
				opts = append(opts, buildkb.WithForce())
			}
			if rulesOnly {
				opts = append(opts, buildkb.WithRulesOnly())
			}

			var failed int
			for _, path := range args {
				docID, err := p.Curate(cmd.Context(), path, opts...)
				if err != nil {
					fmt.Fprintf(os.Stderr, "curate %s: %v\n", path, err)
					failed++
					continue
				}
				fmt.Printf("curated %s (doc %d)\n", path, docID)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "engineering domain (变电土建, 变电电气, 线路塔基, 特殊作业)")
	cmd.Flags().BoolVar(&force, "force", false, "re-curate even when the file is unchanged")
	cmd.Flags().BoolVar(&rulesOnly, "rules-only", false, "skip model extraction")
	return cmd
}

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <file>",
		Short: "Show how a document's headings map to canonical chapters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			results, report, err := p.Classify(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			for _, r := range results {
				indent := strings.Repeat("  ", max(r.Level-1, 0))
				fmt.Printf("%s%-30s -> %-10s %-9s %.2f\n",
					indent, r.Title, r.ChapterID, r.Tier, r.Confidence)
			}
			fmt.Printf("\ncoverage: %d/%d headings handled (%.0f%%), %d unmapped\n",
				report.Mapped+report.ExcludedCount, report.Total,
				report.CoverageRate*100, report.UnmappedCount)
			return nil
		},
	}
	return cmd
}

func retrieveCmd() *cobra.Command {
	var (
		chapterHint string
		domain      string
		processes   []string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Run fused graph + vector retrieval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			resp, err := p.Retrieve(cmd.Context(), retrieve.Query{
				Text:      args[0],
				Chapter:   chapterHint,
				Domain:    domain,
				Processes: processes,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			if resp.Partial {
				fmt.Println("(partial: one retrieval path degraded)")
			}
			if len(resp.Items) == 0 {
				fmt.Println("no results")
				return nil
			}
			for i, item := range resp.Items {
				fmt.Printf("%2d. [%s p%d %.2f] %s\n",
					i+1, item.Source, item.Priority, item.Score, item.Content)
			}
			fmt.Printf("\n%d regulations, %d cases\n", len(resp.Regulations), len(resp.Cases))
			return nil
		},
	}
	cmd.Flags().StringVar(&chapterHint, "chapter", "", "chapter hint (Ch1..Ch10 or partition name)")
	cmd.Flags().StringVar(&domain, "domain", "", "engineering domain hint")
	cmd.Flags().StringArrayVar(&processes, "process", nil, "process name hint (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the full response as JSON")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report knowledge base contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			st, err := p.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("documents:  %d\n", st.Documents)
			fmt.Printf("fragments:  %d (%d embedded)\n", st.Fragments, st.Embeddings)
			fmt.Printf("entities:   %d\n", st.Entities)
			fmt.Printf("relations:  %d\n", st.Relations)
			if len(st.ByChapter) > 0 {
				fmt.Println("\nfragments by chapter:")
				for _, ch := range sortedKeys(st.ByChapter) {
					fmt.Printf("  %-14s %d\n", ch, st.ByChapter[ch])
				}
			}
			if len(st.ByType) > 0 {
				fmt.Println("\nentities by type:")
				for _, ty := range sortedKeys(st.ByType) {
					fmt.Printf("  %-14s %d\n", ty, st.ByType[ty])
				}
			}

			docs, err := p.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			if len(docs) > 0 {
				fmt.Println("\ndocuments:")
				for _, d := range docs {
					fmt.Printf("  %4d  %-8s %-8s %s\n", d.ID, d.Status, d.Domain, d.Filename)
				}
			}
			return nil
		},
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
