package mcp

// IndexRepositoryInput defines the input schema for the
// index_repository tool.
type IndexRepositoryInput struct {
	Repository     string `json:"repository" jsonschema:"absolute path of the repository root to index"`
	Workers        *int   `json:"workers,omitempty" jsonschema:"parallel pipeline workers; omit for the configured default"`
	IncludeIgnored bool   `json:"include_ignored,omitempty" jsonschema:"also index files matched by ignore rules"`
	ForceReindex   bool   `json:"force_reindex,omitempty" jsonschema:"drop everything stored for the repository before indexing"`
}

// FileFailureOutput is one file the run could not index.
type FileFailureOutput struct {
	FilePath string `json:"file_path" jsonschema:"repository-relative path of the failed file"`
	Kind     string `json:"kind" jsonschema:"failure kind, e.g. parse_error"`
	Message  string `json:"message" jsonschema:"failure detail"`
}

// IndexRepositoryOutput defines the output schema for the
// index_repository tool.
type IndexRepositoryOutput struct {
	Repository string              `json:"repository" jsonschema:"repository root path"`
	Total      int                 `json:"total" jsonschema:"files considered by the run"`
	Indexed    int                 `json:"indexed" jsonschema:"files freshly indexed"`
	Cached     int                 `json:"cached" jsonschema:"unchanged files served from cache"`
	Skipped    int                 `json:"skipped" jsonschema:"files rejected by policy: too large, binary, unknown language"`
	Failed     []FileFailureOutput `json:"failed,omitempty" jsonschema:"per-file failures; the run continued past them"`
	Chunks     int                 `json:"chunks" jsonschema:"chunks written to the store"`
	Nodes      int                 `json:"nodes" jsonschema:"graph nodes written"`
	Edges      int                 `json:"edges" jsonschema:"graph edges written"`
	DurationMS int64               `json:"duration_ms" jsonschema:"wall-clock duration of the run in milliseconds"`
}

// SearchCodeInput defines the input schema for the search_code tool.
type SearchCodeInput struct {
	Query      string `json:"query" jsonschema:"the search query; identifier-shaped queries like parseConfig favor exact symbol matches"`
	Repository string `json:"repository,omitempty" jsonschema:"restrict to one repository root path"`
	Language   string `json:"language,omitempty" jsonschema:"filter by language: go, typescript, javascript, python, markdown"`
	Kind       string `json:"kind,omitempty" jsonschema:"filter by chunk kind: function, method, class, interface, enum, type_alias, module, section"`
	PathGlob   string `json:"path_glob,omitempty" jsonschema:"filter file paths by glob, e.g. internal/**"`
	ReturnType string `json:"return_type,omitempty" jsonschema:"filter by substring of the declared return type"`
	ParamType  string `json:"param_type,omitempty" jsonschema:"filter by substring of a parameter type"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
	Offset     int    `json:"offset,omitempty" jsonschema:"pagination offset into the fused result list"`
	NoCache    bool   `json:"no_cache,omitempty" jsonschema:"bypass the result cache for this query"`
}

// SearchResultOutput is a single search hit.
type SearchResultOutput struct {
	FilePath      string  `json:"file_path" jsonschema:"repository-relative file path"`
	Language      string  `json:"language,omitempty" jsonschema:"language of the file"`
	Kind          string  `json:"kind,omitempty" jsonschema:"chunk kind: function, method, class, ..."`
	Name          string  `json:"name,omitempty" jsonschema:"declared symbol name"`
	QualifiedName string  `json:"qualified_name,omitempty" jsonschema:"module-scoped dotted name"`
	StartLine     int     `json:"start_line" jsonschema:"first line of the chunk"`
	EndLine       int     `json:"end_line" jsonschema:"last line of the chunk"`
	Snippet       string  `json:"snippet" jsonschema:"source text of the chunk"`
	Score         float64 `json:"score" jsonschema:"fused relevance score, higher is better"`
	MatchedBy     string  `json:"matched_by,omitempty" jsonschema:"which retrieval lists carried the hit: lexical, vector, or both"`
}

// SearchOutput defines the output schema for the search_code tool.
type SearchOutput struct {
	Results    []SearchResultOutput `json:"results" jsonschema:"fused, paginated results"`
	Total      int                  `json:"total" jsonschema:"total fused results before pagination"`
	HasNext    bool                 `json:"has_next" jsonschema:"whether another page exists"`
	NextOffset int                  `json:"next_offset,omitempty" jsonschema:"offset of the next page when has_next"`
	CacheHit   bool                 `json:"cache_hit" jsonschema:"whether the fused list came from the result cache"`
	Degraded   bool                 `json:"degraded,omitempty" jsonschema:"true when vector retrieval was unavailable and results are lexical-only"`
}

// IndexingStatusInput defines the input schema for the indexing_status
// tool.
type IndexingStatusInput struct {
	Repository string `json:"repository" jsonschema:"absolute path of the repository root"`
}

// IndexingStatusOutput defines the output schema for the
// indexing_status tool.
type IndexingStatusOutput struct {
	Repository   string `json:"repository" jsonschema:"repository root path"`
	State        string `json:"state" jsonschema:"not_indexed, in_progress, completed, or failed"`
	TotalFiles   int    `json:"total_files" jsonschema:"files in the current or last run"`
	IndexedFiles int    `json:"indexed_files" jsonschema:"files finished so far"`
	StartedAt    string `json:"started_at,omitempty" jsonschema:"RFC3339 start time of the run"`
	CompletedAt  string `json:"completed_at,omitempty" jsonschema:"RFC3339 completion time for terminal states"`
	Error        string `json:"error,omitempty" jsonschema:"failure message when state is failed"`
}

// RepositoryStatsInput defines the input schema for the
// repository_stats tool.
type RepositoryStatsInput struct {
	Repository string `json:"repository" jsonschema:"absolute path of the repository root"`
}

// RepositoryStatsOutput defines the output schema for the
// repository_stats tool.
type RepositoryStatsOutput struct {
	Repository    string   `json:"repository" jsonschema:"repository root path"`
	TotalChunks   int64    `json:"total_chunks" jsonschema:"chunks stored for the repository"`
	Nodes         int64    `json:"nodes" jsonschema:"graph nodes stored"`
	Edges         int64    `json:"edges" jsonschema:"graph edges stored"`
	Languages     []string `json:"languages,omitempty" jsonschema:"languages present in the index"`
	LastIndexedAt string   `json:"last_indexed_at,omitempty" jsonschema:"RFC3339 time of the last write"`
}

// CacheStatsInput defines the input schema for the cache_stats tool
// (no parameters).
type CacheStatsInput struct{}

// CacheLayerOutput reports one cache layer's counters.
type CacheLayerOutput struct {
	Type      string  `json:"type" jsonschema:"layer kind: lru or redis"`
	Entries   int64   `json:"entries" jsonschema:"entries currently held"`
	Hits      int64   `json:"hits" jsonschema:"reads served by this layer"`
	Misses    int64   `json:"misses" jsonschema:"reads this layer could not serve"`
	HitRate   float64 `json:"hit_rate" jsonschema:"hits over reads, 0..1"`
	Evictions int64   `json:"evictions,omitempty" jsonschema:"entries dropped (in-process layer only)"`
	Errors    int64   `json:"errors,omitempty" jsonschema:"transport failures (shared layer only)"`
	Connected bool    `json:"connected" jsonschema:"whether the layer is reachable"`
}

// CacheStatsOutput defines the output schema for the cache_stats tool.
type CacheStatsOutput struct {
	L1              CacheLayerOutput  `json:"l1" jsonschema:"in-process layer"`
	L2              *CacheLayerOutput `json:"l2,omitempty" jsonschema:"shared redis layer, absent when not configured"`
	CombinedHitRate float64           `json:"combined_hit_rate" jsonschema:"probability a read was served from any cache layer"`
}

// ClearCacheInput defines the input schema for the clear_cache tool.
type ClearCacheInput struct {
	Scope string `json:"scope,omitempty" jsonschema:"all, repository:<path>, or file:<path>; empty means all"`
}

// ClearCacheOutput defines the output schema for the clear_cache tool.
type ClearCacheOutput struct {
	Scope   string `json:"scope" jsonschema:"the scope that was cleared"`
	Cleared bool   `json:"cleared" jsonschema:"always true on success"`
}
