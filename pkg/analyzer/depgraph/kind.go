package depgraph

// Kind classifies a symbol node.
type Kind string

const (
	KindFile          Kind = "file"
	KindModule        Kind = "module"
	KindNamespace     Kind = "namespace"
	KindPackage       Kind = "package"
	KindClass         Kind = "class"
	KindMethod        Kind = "method"
	KindProperty      Kind = "property"
	KindField         Kind = "field"
	KindConstructor   Kind = "constructor"
	KindEnum          Kind = "enum"
	KindInterface     Kind = "interface"
	KindFunction      Kind = "function"
	KindVariable      Kind = "variable"
	KindConstant      Kind = "constant"
	KindEnumMember    Kind = "enum_member"
	KindStruct        Kind = "struct"
	KindEvent         Kind = "event"
	KindOperator      Kind = "operator"
	KindTypeParameter Kind = "type_parameter"
	KindUnknown       Kind = "unknown"
)

// Callable reports whether the kind denotes executable code.
func (k Kind) Callable() bool {
	switch k {
	case KindFunction, KindMethod, KindConstructor, KindOperator:
		return true
	}
	return false
}

// Type reports whether the kind declares a type.
func (k Kind) Type() bool {
	switch k {
	case KindClass, KindStruct, KindInterface, KindEnum, KindTypeParameter:
		return true
	}
	return false
}

// AllKinds lists every kind except KindUnknown.
func AllKinds() []Kind {
	return []Kind{
		KindFile, KindModule, KindNamespace, KindPackage, KindClass,
		KindMethod, KindProperty, KindField, KindConstructor, KindEnum,
		KindInterface, KindFunction, KindVariable, KindConstant,
		KindEnumMember, KindStruct, KindEvent, KindOperator, KindTypeParameter,
	}
}
