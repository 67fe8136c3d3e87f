package builder

import (
	"github.com/panbanda/symreach/pkg/analyzer/depgraph"
	"github.com/panbanda/symreach/pkg/provider"
)

// owner is a declaration that can enclose reference locations.
type owner struct {
	idx  depgraph.NodeIndex
	id   depgraph.SymbolID
	span depgraph.Span
}

// resolveOwner picks the innermost declaration in candidates whose extent
// contains pos: fewest lines, then fewest columns on equal lines. Remaining
// ties go to the later start, then the smaller ID.
func resolveOwner(candidates []owner, pos provider.Position) (depgraph.NodeIndex, bool) {
	var best *owner
	for i := range candidates {
		c := &candidates[i]
		if !c.span.Contains(pos.Line, pos.Character) {
			continue
		}
		if best == nil || innerThan(c, best) {
			best = c
		}
	}
	if best == nil {
		return 0, false
	}
	return best.idx, true
}

func innerThan(a, b *owner) bool {
	if al, bl := a.span.Lines(), b.span.Lines(); al != bl {
		return al < bl
	}
	if aw, bw := width(a.span), width(b.span); aw != bw {
		return aw < bw
	}
	if a.span.StartLine != b.span.StartLine {
		return a.span.StartLine > b.span.StartLine
	}
	if a.span.StartColumn != b.span.StartColumn {
		return a.span.StartColumn > b.span.StartColumn
	}
	return a.id < b.id
}

// width compares spans covering the same number of lines. For single-line
// spans it is the column count; otherwise columns on the boundary lines.
func width(s depgraph.Span) int {
	if s.StartLine == s.EndLine {
		return s.EndColumn - s.StartColumn
	}
	return s.EndColumn + (1 << 20) - s.StartColumn
}
