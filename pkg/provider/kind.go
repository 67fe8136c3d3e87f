package provider

// SymbolKind is the numeric symbol kind used by the language server protocol.
type SymbolKind int

const (
	KindFile          SymbolKind = 1
	KindModule        SymbolKind = 2
	KindNamespace     SymbolKind = 3
	KindPackage       SymbolKind = 4
	KindClass         SymbolKind = 5
	KindMethod        SymbolKind = 6
	KindProperty      SymbolKind = 7
	KindField         SymbolKind = 8
	KindConstructor   SymbolKind = 9
	KindEnum          SymbolKind = 10
	KindInterface     SymbolKind = 11
	KindFunction      SymbolKind = 12
	KindVariable      SymbolKind = 13
	KindConstant      SymbolKind = 14
	KindString        SymbolKind = 15
	KindNumber        SymbolKind = 16
	KindBoolean       SymbolKind = 17
	KindArray         SymbolKind = 18
	KindObject        SymbolKind = 19
	KindKey           SymbolKind = 20
	KindNull          SymbolKind = 21
	KindEnumMember    SymbolKind = 22
	KindStruct        SymbolKind = 23
	KindEvent         SymbolKind = 24
	KindOperator      SymbolKind = 25
	KindTypeParameter SymbolKind = 26
)

var kindNames = [...]string{
	KindFile:          "file",
	KindModule:        "module",
	KindNamespace:     "namespace",
	KindPackage:       "package",
	KindClass:         "class",
	KindMethod:        "method",
	KindProperty:      "property",
	KindField:         "field",
	KindConstructor:   "constructor",
	KindEnum:          "enum",
	KindInterface:     "interface",
	KindFunction:      "function",
	KindVariable:      "variable",
	KindConstant:      "constant",
	KindString:        "string",
	KindNumber:        "number",
	KindBoolean:       "boolean",
	KindArray:         "array",
	KindObject:        "object",
	KindKey:           "key",
	KindNull:          "null",
	KindEnumMember:    "enum_member",
	KindStruct:        "struct",
	KindEvent:         "event",
	KindOperator:      "operator",
	KindTypeParameter: "type_parameter",
}

// String returns the lowercase kind name, or "unknown" outside 1..26.
func (k SymbolKind) String() string {
	if k < KindFile || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// AllSymbolKinds lists every defined kind, used when advertising client
// capabilities.
func AllSymbolKinds() []SymbolKind {
	kinds := make([]SymbolKind, 0, KindTypeParameter)
	for k := KindFile; k <= KindTypeParameter; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}
