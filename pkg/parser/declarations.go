package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/symreach/pkg/provider"
)

// Declaration is a named declaration found in a parse tree.
type Declaration struct {
	Name      string
	Kind      provider.SymbolKind
	Range     provider.Range
	NameRange provider.Range
	Container string
	Doc       string
	// Exported is set when the syntax alone decides visibility, such as an
	// enclosing export statement.
	Exported *bool
}

// Occurrence is one identifier token.
type Occurrence struct {
	Name  string
	Range provider.Range
}

// declKinds maps declaration node types to symbol kinds per language.
var declKinds = map[Language]map[string]provider.SymbolKind{
	LangGo: {
		"function_declaration": provider.KindFunction,
		"method_declaration":   provider.KindMethod,
		"type_spec":            provider.KindClass,
		"const_spec":           provider.KindConstant,
		"var_spec":             provider.KindVariable,
	},
	LangRust: {
		"function_item":    provider.KindFunction,
		"struct_item":      provider.KindStruct,
		"enum_item":        provider.KindEnum,
		"trait_item":       provider.KindInterface,
		"const_item":       provider.KindConstant,
		"static_item":      provider.KindVariable,
		"mod_item":         provider.KindModule,
		"type_item":        provider.KindClass,
		"union_item":       provider.KindStruct,
		"macro_definition": provider.KindFunction,
	},
	LangPython: {
		"function_definition": provider.KindFunction,
		"class_definition":    provider.KindClass,
	},
	LangTypeScript: scriptDecls,
	LangTSX:        scriptDecls,
	LangJavaScript: scriptDecls,
	LangJava: {
		"class_declaration":       provider.KindClass,
		"interface_declaration":   provider.KindInterface,
		"enum_declaration":        provider.KindEnum,
		"record_declaration":      provider.KindClass,
		"method_declaration":      provider.KindMethod,
		"constructor_declaration": provider.KindConstructor,
	},
	LangCSharp: {
		"class_declaration":       provider.KindClass,
		"interface_declaration":   provider.KindInterface,
		"struct_declaration":      provider.KindStruct,
		"enum_declaration":        provider.KindEnum,
		"record_declaration":      provider.KindClass,
		"method_declaration":      provider.KindMethod,
		"constructor_declaration": provider.KindConstructor,
	},
	LangC: {
		"function_definition": provider.KindFunction,
		"struct_specifier":    provider.KindStruct,
		"enum_specifier":      provider.KindEnum,
	},
	LangCPP: {
		"function_definition":  provider.KindFunction,
		"class_specifier":      provider.KindClass,
		"struct_specifier":     provider.KindStruct,
		"enum_specifier":       provider.KindEnum,
		"namespace_definition": provider.KindNamespace,
	},
	LangRuby: {
		"method":           provider.KindMethod,
		"singleton_method": provider.KindMethod,
		"class":            provider.KindClass,
		"module":           provider.KindModule,
	},
	LangPHP: {
		"function_definition":   provider.KindFunction,
		"method_declaration":    provider.KindMethod,
		"class_declaration":     provider.KindClass,
		"interface_declaration": provider.KindInterface,
		"trait_declaration":     provider.KindInterface,
	},
	LangBash: {
		"function_definition": provider.KindFunction,
	},
}

var scriptDecls = map[string]provider.SymbolKind{
	"function_declaration":           provider.KindFunction,
	"generator_function_declaration": provider.KindFunction,
	"class_declaration":              provider.KindClass,
	"abstract_class_declaration":     provider.KindClass,
	"method_definition":              provider.KindMethod,
	"interface_declaration":          provider.KindInterface,
	"enum_declaration":               provider.KindEnum,
	"type_alias_declaration":         provider.KindClass,
	"variable_declarator":            provider.KindVariable,
}

// containers are node types whose declarations own nested ones.
var containers = map[string]bool{
	"class_definition":           true,
	"class_declaration":          true,
	"abstract_class_declaration": true,
	"impl_item":                  true,
	"trait_item":                 true,
	"class_specifier":            true,
	"struct_specifier":           true,
	"interface_declaration":      true,
	"class":                      true,
	"module":                     true,
}

var identifierTypes = map[string]bool{
	"identifier":                    true,
	"field_identifier":              true,
	"type_identifier":               true,
	"property_identifier":           true,
	"shorthand_property_identifier": true,
	"private_property_identifier":   true,
	"namespace_identifier":          true,
	"constant":                      true,
	"name":                          true,
}

// Declarations returns every named declaration in the tree in source order.
func Declarations(result *ParseResult) []Declaration {
	kinds := declKinds[result.Language]
	if kinds == nil {
		return nil
	}
	source := result.Source
	var decls []Declaration

	Walk(result.Tree.RootNode(), func(node *sitter.Node, nodeType string) bool {
		kind, ok := kinds[nodeType]
		if !ok {
			return true
		}
		if nodeType == "variable_declarator" && !topLevelVariable(node) {
			return true
		}
		if (nodeType == "var_spec" || nodeType == "const_spec") &&
			hasAncestor(node, "function_declaration", "method_declaration", "func_literal") {
			return true
		}
		if (nodeType == "struct_specifier" || nodeType == "enum_specifier" || nodeType == "class_specifier") &&
			node.ChildByFieldName("body") == nil {
			// forward declarations and type references
			return true
		}

		nameNode := declarationName(node, nodeType, result.Language)
		if nameNode == nil {
			return true
		}
		name := NodeText(nameNode, source)
		if name == "" || strings.ContainsAny(name, "{}[](),\n") {
			// destructuring patterns and other non-names
			return true
		}

		d := Declaration{
			Name:      name,
			Kind:      refineKind(node, nodeType, kind, result.Language, source),
			Range:     nodeRange(node),
			NameRange: nodeRange(nameNode),
			Container: containerName(node, source),
			Doc:       leadingComment(node, source),
			Exported:  syntacticExport(node, nodeType, result.Language),
		}
		decls = append(decls, d)
		return true
	})

	return decls
}

// Identifiers returns every identifier token in the tree.
func Identifiers(result *ParseResult) []Occurrence {
	var out []Occurrence
	source := result.Source
	Walk(result.Tree.RootNode(), func(node *sitter.Node, nodeType string) bool {
		if node.ChildCount() == 0 && identifierTypes[nodeType] {
			if text := NodeText(node, source); text != "" {
				out = append(out, Occurrence{Name: text, Range: nodeRange(node)})
			}
			return false
		}
		if nodeType == "comment" || nodeType == "line_comment" || nodeType == "block_comment" {
			return false
		}
		return true
	})
	return out
}

func declarationName(node *sitter.Node, nodeType string, lang Language) *sitter.Node {
	if lang == LangC || lang == LangCPP {
		if nodeType == "function_definition" {
			return innermostDeclarator(node.ChildByFieldName("declarator"))
		}
	}
	if n := node.ChildByFieldName("name"); n != nil {
		return n
	}
	// Ruby and some grammars carry the name as the first identifier child.
	for i := range int(node.NamedChildCount()) {
		child := node.NamedChild(i)
		switch child.Type() {
		case "identifier", "constant", "type_identifier", "name":
			return child
		}
	}
	return nil
}

func innermostDeclarator(node *sitter.Node) *sitter.Node {
	for node != nil {
		switch node.Type() {
		case "identifier", "field_identifier", "destructor_name", "operator_name":
			return node
		case "qualified_identifier":
			if n := node.ChildByFieldName("name"); n != nil {
				node = n
				continue
			}
			return node
		}
		next := node.ChildByFieldName("declarator")
		if next == nil {
			return nil
		}
		node = next
	}
	return nil
}

func refineKind(node *sitter.Node, nodeType string, kind provider.SymbolKind, lang Language, source []byte) provider.SymbolKind {
	switch {
	case lang == LangGo && nodeType == "type_spec":
		if t := node.ChildByFieldName("type"); t != nil {
			switch t.Type() {
			case "struct_type":
				return provider.KindStruct
			case "interface_type":
				return provider.KindInterface
			}
		}
	case lang == LangRust && nodeType == "function_item":
		if hasAncestor(node, "impl_item", "trait_item") {
			return provider.KindMethod
		}
	case lang == LangPython && nodeType == "function_definition":
		if hasAncestor(node, "class_definition") {
			if NodeText(node.ChildByFieldName("name"), source) == "__init__" {
				return provider.KindConstructor
			}
			return provider.KindMethod
		}
	case (lang == LangTypeScript || lang == LangTSX || lang == LangJavaScript) && nodeType == "method_definition":
		if NodeText(node.ChildByFieldName("name"), source) == "constructor" {
			return provider.KindConstructor
		}
	case nodeType == "variable_declarator":
		if v := node.ChildByFieldName("value"); v != nil {
			switch v.Type() {
			case "arrow_function", "function", "function_expression", "generator_function":
				return provider.KindFunction
			}
		}
		if p := node.Parent(); p != nil && strings.HasPrefix(NodeText(p, source), "const ") {
			return provider.KindConstant
		}
	case (lang == LangC || lang == LangCPP) && nodeType == "function_definition":
		if hasAncestor(node, "class_specifier", "struct_specifier") {
			return provider.KindMethod
		}
	}
	return kind
}

func topLevelVariable(node *sitter.Node) bool {
	decl := node.Parent()
	if decl == nil {
		return false
	}
	parent := decl.Parent()
	if parent != nil && parent.Type() == "export_statement" {
		parent = parent.Parent()
	}
	return parent != nil && parent.Type() == "program"
}

func hasAncestor(node *sitter.Node, types ...string) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		pt := p.Type()
		for _, t := range types {
			if pt == t {
				return true
			}
		}
	}
	return false
}

func containerName(node *sitter.Node, source []byte) string {
	if node.Type() == "method_declaration" {
		// Go method receivers
		if recv := node.ChildByFieldName("receiver"); recv != nil {
			var typeName string
			Walk(recv, func(n *sitter.Node, t string) bool {
				if t == "type_identifier" {
					typeName = NodeText(n, source)
					return false
				}
				return typeName == ""
			})
			if typeName != "" {
				return typeName
			}
		}
	}
	for p := node.Parent(); p != nil; p = p.Parent() {
		if !containers[p.Type()] {
			continue
		}
		if p.Type() == "impl_item" {
			return NodeText(p.ChildByFieldName("type"), source)
		}
		if n := p.ChildByFieldName("name"); n != nil {
			return NodeText(n, source)
		}
	}
	return ""
}

func syntacticExport(node *sitter.Node, nodeType string, lang Language) *bool {
	if lang != LangTypeScript && lang != LangTSX && lang != LangJavaScript {
		return nil
	}
	target := node
	if nodeType == "variable_declarator" {
		target = node.Parent()
	}
	if target == nil {
		return nil
	}
	if p := target.Parent(); p != nil && p.Type() == "export_statement" {
		exported := true
		return &exported
	}
	return nil
}

func leadingComment(node *sitter.Node, source []byte) string {
	// Doc comments sit before wrappers such as export statements or a
	// single-spec Go type/const group.
	target := node
	for p := target.Parent(); p != nil && docWrappers[p.Type()] && p.NamedChildCount() <= 2; p = target.Parent() {
		target = p
	}

	var lines []string
	line := int(target.StartPoint().Row)
	for prev := target.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		pt := prev.Type()
		if pt != "comment" && pt != "line_comment" && pt != "block_comment" {
			break
		}
		if int(prev.EndPoint().Row) < line-1 {
			break
		}
		lines = append([]string{cleanComment(NodeText(prev, source))}, lines...)
		line = int(prev.StartPoint().Row)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var docWrappers = map[string]bool{
	"export_statement":     true,
	"type_declaration":     true,
	"const_declaration":    true,
	"var_declaration":      true,
	"lexical_declaration":  true,
	"variable_declaration": true,
	"decorated_definition": true,
}

func cleanComment(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "/**")
	text = strings.TrimPrefix(text, "/*")
	text = strings.TrimSuffix(text, "*/")
	var out []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		for _, prefix := range []string{"///", "//!", "//", "#", "*"} {
			if strings.HasPrefix(l, prefix) {
				l = strings.TrimSpace(strings.TrimPrefix(l, prefix))
				break
			}
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func nodeRange(node *sitter.Node) provider.Range {
	start, end := node.StartPoint(), node.EndPoint()
	return provider.Range{
		Start: provider.Position{Line: int(start.Row), Character: int(start.Column)},
		End:   provider.Position{Line: int(end.Row), Character: int(end.Column)},
	}
}
