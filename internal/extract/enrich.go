package extract

import (
	"context"
	"strings"

	"github.com/mnemolite/mnemolite/internal/chunk"
)

// TypeOracle is the hover side of the optional type oracle. line is
// 1-indexed, char is a 0-indexed column.
type TypeOracle interface {
	Hover(ctx context.Context, file string, line, char int) (string, bool)
}

// EnrichTypes fills return_type and param_types from the oracle's hover
// text at the chunk's declaration site. Chunks that already carry type
// information and non-callable chunks are left untouched; so is everything
// when the oracle has nothing to say.
func EnrichTypes(ctx context.Context, oracle TypeOracle, ch *chunk.Chunk) {
	if oracle == nil || ch == nil {
		return
	}
	if ch.Kind != chunk.KindFunction && ch.Kind != chunk.KindMethod {
		return
	}
	if ch.Metadata.ReturnType != nil && len(ch.Metadata.ParamTypes) > 0 {
		return
	}

	line, char := declSite(ch)
	text, ok := oracle.Hover(ctx, ch.FilePath, line, char)
	if !ok {
		return
	}
	params, ret, ok := parseHoverSignature(text)
	if !ok {
		return
	}

	if ch.Metadata.ReturnType == nil && ret != "" {
		ch.Metadata.ReturnType = &ret
	}
	if len(ch.Metadata.ParamTypes) == 0 && len(params) > 0 {
		ch.Metadata.ParamTypes = params
	}
}

// declSite locates the declaration name within the chunk's first line.
func declSite(ch *chunk.Chunk) (line, char int) {
	first := ch.SourceCode
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	char = strings.Index(first, ch.Name)
	if char < 0 {
		char = 0
	}
	return ch.StartLine, char
}

// parseHoverSignature interprets a hover type string of the arrow form
// "(a: int, b: str) -> bool" or "(a: number) => number", tolerating the
// "(function) def f(...)" framing the common language servers add.
// Anything else is ignored.
func parseHoverSignature(text string) ([]chunk.Param, string, bool) {
	text = strings.TrimSpace(text)

	depth := 0
	openIdx := -1
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '[', '{':
			if depth == 0 && text[i] == '(' {
				openIdx = i
			}
			depth++
		case ')', ']', '}':
			depth--
			if depth != 0 || text[i] != ')' || openIdx < 0 {
				continue
			}
			rest := strings.TrimSpace(text[i+1:])
			var ret string
			switch {
			case strings.HasPrefix(rest, "->"):
				ret = strings.TrimPrefix(rest, "->")
			case strings.HasPrefix(rest, "=>"):
				ret = strings.TrimPrefix(rest, "=>")
			case strings.HasPrefix(rest, ":"):
				ret = strings.TrimPrefix(rest, ":")
			default:
				continue
			}
			ret = strings.TrimSuffix(strings.TrimSpace(ret), ":")
			return parseParams(text[openIdx+1 : i]), strings.TrimSpace(ret), true
		}
	}
	return nil, "", false
}

func parseParams(list string) []chunk.Param {
	params := []chunk.Param{}
	for _, part := range splitTopLevel(list, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, typ := part, ""
		if i := topLevelIndex(part, ':'); i >= 0 {
			name = strings.TrimSpace(part[:i])
			typ = strings.TrimSpace(part[i+1:])
		}
		// drop default values on either side
		if i := strings.IndexByte(name, '='); i >= 0 {
			name = strings.TrimSpace(name[:i])
		}
		if i := topLevelIndex(typ, '='); i >= 0 {
			typ = strings.TrimSpace(typ[:i])
		}
		params = append(params, chunk.Param{Name: name, Type: typ})
	}
	return params
}

// splitTopLevel splits on sep outside any bracket nesting.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, last := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

func topLevelIndex(s string, sep byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
