package cache

// Key namespace shared by every process on one L2. Chunk entries are
// keyed by file path and content fingerprint, search entries by query
// fingerprint, indexing status and locks by repository. File paths are
// repository-absolute so entries from different repositories cannot
// collide.

// ChunksKey is the L2 key for one file's chunks at one content version.
func ChunksKey(filePath, fingerprint string) string {
	return "chunks:" + filePath + ":" + fingerprint
}

// ChunksFilePattern matches every cached version of one file.
func ChunksFilePattern(filePath string) string {
	return "chunks:" + filePath + ":*"
}

// ChunksRepoPattern matches every chunk entry under a repository root.
func ChunksRepoPattern(repository string) string {
	return "chunks:" + repository + "*"
}

// ChunksPattern matches every chunk entry.
func ChunksPattern() string {
	return "chunks:*"
}

// SearchKey is the L2 key for one canonical query fingerprint.
func SearchKey(fingerprint string) string {
	return "search:" + fingerprint
}

// SearchPattern matches every cached search result.
func SearchPattern() string {
	return "search:*"
}

// StatusKey is the L2 key for a repository's indexing status record.
func StatusKey(repository string) string {
	return "indexing:status:" + repository
}

// LockKey is the L2 key for a repository's advisory indexing lock.
func LockKey(repository string) string {
	return "indexing:lock:" + repository
}
