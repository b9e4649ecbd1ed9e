package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkMarkdown(t *testing.T, path, source string) []*Chunk {
	t.Helper()

	chunker := NewMarkdownChunker()
	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Repository: "demo",
		Path:       path,
		Content:    []byte(source),
		Language:   "markdown",
	})
	require.NoError(t, err)
	return chunks
}

func TestMarkdownChunker_SectionsPerHeading(t *testing.T) {
	// Given: a document with nested headings
	source := `# Guide

Welcome.

## Install

Run the installer.

## Usage

Call the thing.
`

	// When: chunking
	chunks := chunkMarkdown(t, "docs/guide.md", source)

	// Then: one section chunk per heading, slug paths follow the hierarchy
	require.Len(t, chunks, 3)

	guide := findByQualifiedName(chunks, "docs.guide.guide")
	require.NotNil(t, guide)
	assert.Equal(t, KindSection, guide.Kind)
	assert.Equal(t, "Guide", guide.Name)
	assert.Contains(t, guide.SourceCode, "Welcome.")

	install := findByQualifiedName(chunks, "docs.guide.guide.install")
	require.NotNil(t, install)
	assert.Contains(t, install.SourceCode, "Run the installer.")
	assert.Equal(t, "Install", install.Metadata.Docstring)

	usage := findByQualifiedName(chunks, "docs.guide.guide.usage")
	require.NotNil(t, usage)
	assert.Equal(t, 9, usage.StartLine)
}

func TestMarkdownChunker_PreambleBeforeFirstHeading(t *testing.T) {
	// Given: text before the first heading
	source := `Some intro text.

# Actual Start

Body.
`

	// When: chunking
	chunks := chunkMarkdown(t, "notes.md", source)

	// Then: the leading text is its own preamble section
	require.Len(t, chunks, 2)
	preamble := findByQualifiedName(chunks, "notes.preamble")
	require.NotNil(t, preamble)
	assert.Equal(t, "preamble", preamble.Name)
	assert.Equal(t, 1, preamble.StartLine)
	assert.Contains(t, preamble.SourceCode, "Some intro text.")
}

func TestMarkdownChunker_NoHeadingsYieldsModuleChunk(t *testing.T) {
	// Given: a headerless document
	source := "just some notes\nwith two lines\n"

	// When: chunking
	chunks := chunkMarkdown(t, "todo.md", source)

	// Then: the whole file is one module chunk
	require.Len(t, chunks, 1)
	assert.Equal(t, KindModule, chunks[0].Kind)
	assert.Equal(t, "todo", chunks[0].QualifiedName)
}

func TestMarkdownChunker_DuplicateHeadingsGetSuffixed(t *testing.T) {
	// Given: two identical headings at the same level
	source := `# Log

## Entry

first

## Entry

second
`

	// When: chunking
	chunks := chunkMarkdown(t, "log.md", source)

	// Then: the second occurrence is disambiguated
	require.Len(t, chunks, 3)
	assert.NotNil(t, findByQualifiedName(chunks, "log.log.entry"))
	assert.NotNil(t, findByQualifiedName(chunks, "log.log.entry-2"))
}

func TestMarkdownChunker_HeadingStackResetsOnHigherLevel(t *testing.T) {
	// Given: heading levels going down and back up
	source := `# A

## B

text

# C

## D

text
`

	// When: chunking
	chunks := chunkMarkdown(t, "doc.md", source)

	// Then: D nests under C, not under A
	assert.NotNil(t, findByQualifiedName(chunks, "doc.a.b"))
	assert.NotNil(t, findByQualifiedName(chunks, "doc.c.d"))
	assert.Nil(t, findByQualifiedName(chunks, "doc.a.d"))
}

func TestMarkdownChunker_EmptyFileYieldsNoChunks(t *testing.T) {
	chunks := chunkMarkdown(t, "empty.md", "   \n\n  ")
	assert.Empty(t, chunks)
}

func TestMarkdownChunker_SlugifyStripsPunctuation(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Getting Started", "getting-started"},
		{"FAQ: How do I?", "faq-how-do-i"},
		{"v2.0 Release", "v2-0-release"},
		{"!!!", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, slugify(tc.title), tc.title)
	}
}
