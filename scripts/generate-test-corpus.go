//go:build ignore

// Generates a synthetic repository for indexing benchmarks: source
// files in every language the chunker parses, sized and shaped like
// real declarations so parse, chunk and embed stages do real work.
//
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 1000, "Number of files to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

const goTemplate = `package %s

import (
	"context"
	"fmt"
)

// %[2]s coordinates %[3]s for one repository.
type %[2]s struct {
	name    string
	limit   int
	entries map[string]string
}

// New%[2]s builds a %[2]s bounded to limit entries.
func New%[2]s(name string, limit int) *%[2]s {
	return &%[2]s{
		name:    name,
		limit:   limit,
		entries: make(map[string]string, limit),
	}
}

// %[4]s runs one %[3]s pass over the input.
func (s *%[2]s) %[4]s(ctx context.Context, input string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if len(s.entries) >= s.limit {
		return "", fmt.Errorf("%%s: entry limit %%d reached", s.name, s.limit)
	}
	out := fmt.Sprintf("%%s/%%s", s.name, input)
	s.entries[input] = out
	return out, nil
}

// Len reports how many entries the %[2]s holds.
func (s *%[2]s) Len() int {
	return len(s.entries)
}
`

const pyTemplate = `"""%[1]s: %[2]s helpers."""

from dataclasses import dataclass, field
from typing import Dict, Optional


@dataclass
class %[1]sRecord:
    """One %[2]s record."""

    key: str
    value: str
    attributes: Dict[str, str] = field(default_factory=dict)


class %[1]s:
    """Keeps %[2]s records keyed by name."""

    def __init__(self, limit: int = 128):
        self.limit = limit
        self._records: Dict[str, %[1]sRecord] = {}

    def %[3]s(self, key: str, value: str) -> %[1]sRecord:
        """Store one record, evicting nothing."""
        if len(self._records) >= self.limit:
            raise ValueError(f"limit {self.limit} reached")
        record = %[1]sRecord(key=key, value=value)
        self._records[key] = record
        return record

    def lookup(self, key: str) -> Optional[%[1]sRecord]:
        return self._records.get(key)
`

const tsTemplate = `export interface %[1]sEntry {
  key: string;
  value: string;
  updatedAt: number;
}

/** In-memory %[2]s table with a fixed capacity. */
export class %[1]s {
  private entries = new Map<string, %[1]sEntry>();

  constructor(private readonly limit: number = 128) {}

  %[3]s(key: string, value: string): %[1]sEntry {
    if (this.entries.size >= this.limit) {
      throw new Error('limit ' + this.limit + ' reached');
    }
    const entry: %[1]sEntry = { key, value, updatedAt: Date.now() };
    this.entries.set(key, entry);
    return entry;
  }

  lookup(key: string): %[1]sEntry | undefined {
    return this.entries.get(key);
  }

  get size(): number {
    return this.entries.size;
  }
}
`

const mdTemplate = `# %[1]s

%[1]s handles %[2]s.

## Usage

Instantiate one %[1]s per repository and call %[3]s for each entry.

## Limits

Capacity is fixed at construction time; overflow raises an error rather
than evicting, so callers see pressure instead of silent data loss.
`

var (
	nouns = []string{
		"Handler", "Registry", "Resolver", "Planner", "Collector",
		"Indexer", "Matcher", "Tracker", "Ledger", "Catalog",
		"Journal", "Router", "Scheduler", "Inspector", "Broker",
	}
	verbs = []string{
		"Process", "Record", "Resolve", "Plan", "Collect",
		"Track", "Match", "Append", "Route", "Inspect",
	}
	domains = []string{
		"symbol resolution", "dependency tracking", "cache eviction",
		"query planning", "chunk bookkeeping", "lease accounting",
		"progress reporting", "schema migration", "vector batching",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for _, sub := range []string{"go", "python", "typescript", "docs"} {
		if err := os.MkdirAll(filepath.Join(*outputDir, sub), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir %s: %v\n", sub, err)
			os.Exit(1)
		}
	}

	// Roughly the language mix of the repositories we index.
	goFiles := *numFiles * 40 / 100
	pyFiles := *numFiles * 25 / 100
	tsFiles := *numFiles * 25 / 100
	mdFiles := *numFiles - goFiles - pyFiles - tsFiles

	written := 0
	for i := 0; i < goFiles; i++ {
		noun := nouns[rng.Intn(len(nouns))]
		content := fmt.Sprintf(goTemplate,
			fmt.Sprintf("pkg%d", i), noun,
			domains[rng.Intn(len(domains))], verbs[rng.Intn(len(verbs))])
		written += write("go", fmt.Sprintf("%s_%d.go", strings.ToLower(noun), i), content)
	}
	for i := 0; i < pyFiles; i++ {
		noun := nouns[rng.Intn(len(nouns))]
		content := fmt.Sprintf(pyTemplate,
			noun, domains[rng.Intn(len(domains))],
			strings.ToLower(verbs[rng.Intn(len(verbs))]))
		written += write("python", fmt.Sprintf("%s_%d.py", strings.ToLower(noun), i), content)
	}
	for i := 0; i < tsFiles; i++ {
		noun := nouns[rng.Intn(len(nouns))]
		content := fmt.Sprintf(tsTemplate,
			noun, domains[rng.Intn(len(domains))],
			strings.ToLower(verbs[rng.Intn(len(verbs))]))
		written += write("typescript", fmt.Sprintf("%s_%d.ts", strings.ToLower(noun), i), content)
	}
	for i := 0; i < mdFiles; i++ {
		noun := nouns[rng.Intn(len(nouns))]
		content := fmt.Sprintf(mdTemplate,
			noun, domains[rng.Intn(len(domains))],
			strings.ToLower(verbs[rng.Intn(len(verbs))]))
		written += write("docs", fmt.Sprintf("%s_%d.md", strings.ToLower(noun), i), content)
	}

	fmt.Printf("wrote %d files under %s\n", written, *outputDir)
}

func write(sub, name, content string) int {
	path := filepath.Join(*outputDir, sub, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
		return 0
	}
	return 1
}
