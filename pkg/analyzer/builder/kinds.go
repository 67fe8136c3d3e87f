package builder

import (
	"github.com/panbanda/symreach/pkg/analyzer/depgraph"
	"github.com/panbanda/symreach/pkg/provider"
)

var kindMap = map[provider.SymbolKind]depgraph.Kind{
	provider.KindFile:          depgraph.KindFile,
	provider.KindModule:        depgraph.KindModule,
	provider.KindNamespace:     depgraph.KindNamespace,
	provider.KindPackage:       depgraph.KindPackage,
	provider.KindClass:         depgraph.KindClass,
	provider.KindMethod:        depgraph.KindMethod,
	provider.KindProperty:      depgraph.KindProperty,
	provider.KindField:         depgraph.KindField,
	provider.KindConstructor:   depgraph.KindConstructor,
	provider.KindEnum:          depgraph.KindEnum,
	provider.KindInterface:     depgraph.KindInterface,
	provider.KindFunction:      depgraph.KindFunction,
	provider.KindVariable:      depgraph.KindVariable,
	provider.KindConstant:      depgraph.KindConstant,
	provider.KindString:        depgraph.KindConstant,
	provider.KindNumber:        depgraph.KindConstant,
	provider.KindBoolean:       depgraph.KindConstant,
	provider.KindArray:         depgraph.KindVariable,
	provider.KindObject:        depgraph.KindVariable,
	provider.KindKey:           depgraph.KindProperty,
	provider.KindNull:          depgraph.KindConstant,
	provider.KindEnumMember:    depgraph.KindEnumMember,
	provider.KindStruct:        depgraph.KindStruct,
	provider.KindEvent:         depgraph.KindEvent,
	provider.KindOperator:      depgraph.KindOperator,
	provider.KindTypeParameter: depgraph.KindTypeParameter,
}

// KindOf maps a protocol symbol kind onto a graph kind. Literal kinds fold
// into constant or variable; unknown numbers map to KindUnknown.
func KindOf(k provider.SymbolKind) depgraph.Kind {
	if kind, ok := kindMap[k]; ok {
		return kind
	}
	return depgraph.KindUnknown
}
