// Package hash computes the fingerprints MnemoLite uses as correctness
// keys: source-byte digests for cache validation, canonical query
// digests for the search cache, and deterministic chunk/node ids.
//
// Everything here is sha-256 based. Switching the algorithm is a
// schema-breaking change: every stored content_hash and cache key
// becomes invalid and a full re-index is required.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// Namespaces for deterministic ids. Fixed forever; changing them
// changes every chunk and node id.
var (
	chunkNamespace = uuid.MustParse("6ba7b815-9dad-11d1-80b4-00c04fd430c8")
	nodeNamespace  = uuid.MustParse("6ba7b816-9dad-11d1-80b4-00c04fd430c8")
	edgeNamespace  = uuid.MustParse("6ba7b817-9dad-11d1-80b4-00c04fd430c8")
)

// Bytes returns the hex-encoded sha-256 fingerprint of b.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// String returns the fingerprint of a string.
func String(s string) string {
	return Bytes([]byte(s))
}

// Canonical fingerprints an arbitrary value through its canonical JSON
// encoding. Map keys are sorted by encoding/json, struct fields keep
// declaration order, so semantically identical values share a digest
// across processes.
func Canonical(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Marshal only fails for unencodable inputs (channels, funcs);
		// fingerprint the error to stay deterministic rather than panic.
		return String("unencodable:" + err.Error())
	}
	return Bytes(data)
}

// ChunkID derives the stable chunk id. It changes only when the
// repository, file path, language, kind, or qualified name changes;
// re-indexing an unchanged unit keeps its id.
func ChunkID(repository, filePath, language, kind, qualifiedName string) uuid.UUID {
	return uuid.NewSHA1(chunkNamespace, []byte(repository+"\x00"+filePath+"\x00"+language+"\x00"+kind+"\x00"+qualifiedName))
}

// NodeID derives the stable graph node id from the node's unique key.
func NodeID(repository, qualifiedName, nodeType string) uuid.UUID {
	return uuid.NewSHA1(nodeNamespace, []byte(repository+"\x00"+qualifiedName+"\x00"+nodeType))
}

// EdgeID derives the stable edge id from the edge's unique key, so
// rebuilding a graph reproduces the same ids.
func EdgeID(source, target uuid.UUID, edgeType string) uuid.UUID {
	return uuid.NewSHA1(edgeNamespace, []byte(source.String()+"\x00"+target.String()+"\x00"+edgeType))
}
