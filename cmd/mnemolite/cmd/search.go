package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemolite/mnemolite/internal/config"
	"github.com/mnemolite/mnemolite/internal/output"
	"github.com/mnemolite/mnemolite/internal/search"
	"github.com/mnemolite/mnemolite/internal/store"
)

// searchOptions holds the CLI flags for search.
type searchOptions struct {
	limit      int
	offset     int
	language   string
	kind       string
	repository string
	pathGlob   string
	returnType string
	paramType  string

	lexicalOnly bool
	vectorOnly  bool
	noCache     bool
	format      string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed code",
		Long: `Search indexed code with hybrid retrieval: a lexical candidate list
and a vector candidate list are fused with reciprocal-rank fusion.

Examples:
  mnemolite search "parse config file"
  mnemolite search multiply --language go --limit 5
  mnemolite search "http handler" --kind function --format json
  mnemolite search "retry" --path "internal/*" --return-type error`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Result offset for pagination")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g. go, python)")
	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "", "Filter by chunk kind (function, method, class, ...)")
	cmd.Flags().StringVarP(&opts.repository, "repo", "r", "", "Filter by repository root (default: current project)")
	cmd.Flags().StringVarP(&opts.pathGlob, "path", "p", "", "Filter by file path glob")
	cmd.Flags().StringVar(&opts.returnType, "return-type", "", "Filter by return type substring")
	cmd.Flags().StringVar(&opts.paramType, "param-type", "", "Filter by parameter type substring")
	cmd.Flags().BoolVar(&opts.lexicalOnly, "lexical-only", false, "Skip vector retrieval")
	cmd.Flags().BoolVar(&opts.vectorOnly, "vector-only", false, "Skip lexical retrieval")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Bypass the search result cache")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.lexicalOnly && opts.vectorOnly {
		return fmt.Errorf("--lexical-only and --vector-only are mutually exclusive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer setupCommandLogging(cfg)()

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	repository := opts.repository
	if repository == "" {
		repository = defaultRepository()
	}

	req := search.Request{
		Query: query,
		Filters: store.SearchFilters{
			Language:   opts.language,
			Kind:       opts.kind,
			Repository: repository,
			FilePath:   opts.pathGlob,
			ReturnType: opts.returnType,
			ParamType:  opts.paramType,
		},
		Limit:  opts.limit,
		Offset: opts.offset,
		Flags:  search.Flags{Cache: !opts.noCache},
	}
	if opts.lexicalOnly {
		req.Weights = &search.Weights{Lexical: 1, EnableLexical: true}
	}
	if opts.vectorOnly {
		req.Weights = &search.Weights{Vector: 1, EnableVector: true}
	}

	resp, err := app.svc.Search(ctx, req)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return out.JSON(resp)
	}
	renderSearchResults(out, query, resp)
	return nil
}

// defaultRepository resolves the repository filter for searches run
// without --repo: the project root of the working directory.
func defaultRepository() string {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = filepath.Abs(".")
	}
	return root
}

func renderSearchResults(out *output.Writer, query string, resp *search.Response) {
	if len(resp.Results) == 0 {
		out.Statusf("·", "no results for %q", query)
		return
	}

	source := "store"
	if resp.Meta.CacheHit {
		source = "cache"
	}
	out.Statusf("✓", "%d results for %q (%dms, %s)",
		resp.Meta.Total, query, resp.Meta.LatencyMS, source)
	if resp.Meta.Degraded {
		out.Warning("vector retrieval unavailable; results are lexical-only")
	}
	out.Newline()

	for i, r := range resp.Results {
		out.Statusf("", "%d. %s:%d-%d  %s %s  (score %.4f)",
			i+1, r.FilePath, r.StartLine, r.EndLine, r.Kind, r.QualifiedName, r.Score)
		out.Code(snippet(r.SourceCode, 6))
		out.Newline()
	}

	if resp.Meta.HasNext {
		out.Statusf("→", "more results: --offset %d", resp.Meta.NextOffset)
	}
}

// snippet returns the first n lines of source for display.
func snippet(source string, n int) string {
	lines := strings.Split(source, "\n")
	if len(lines) <= n {
		return source
	}
	return strings.Join(lines[:n], "\n") + "\n…"
}
