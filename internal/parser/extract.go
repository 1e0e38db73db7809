package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/QTest-hq/codehealth/pkg/model"
)

const anonymous = "<anonymous>"

// extractor turns tree-sitter nodes into analysis records during a single
// depth-first walk
type extractor struct {
	source []byte
	nested NestedFunctionPolicy
	parsed *ParsedFile
}

func (e *extractor) visit(n *sitter.Node) {
	if !n.IsNamed() {
		return
	}

	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		e.parsed.Functions = append(e.parsed.Functions, e.function(n, ""))

	case "method_definition":
		// Accessors and constructors are only reported on their class
		if isAccessor(n) || e.nameOf(n) == "constructor" {
			return
		}
		e.parsed.Functions = append(e.parsed.Functions, e.function(n, ""))

	case "variable_declarator":
		// const f = () => {} yields a record named after the variable; the
		// initializer is still visited and recorded on its own
		if value := n.ChildByFieldName("value"); value != nil && isFunctionExpression(value) {
			e.parsed.Functions = append(e.parsed.Functions, e.function(value, e.nameOf(n)))
		}

	case "arrow_function", "function_expression", "function", "generator_function":
		e.parsed.Functions = append(e.parsed.Functions, e.function(n, ""))

	case "class_declaration", "abstract_class_declaration":
		e.parsed.Classes = append(e.parsed.Classes, e.class(n))

	case "interface_declaration":
		e.parsed.Interfaces = append(e.parsed.Interfaces, e.iface(n))

	case "type_alias_declaration":
		e.parsed.Types = append(e.parsed.Types, e.typeAlias(n))

	case "import_statement":
		if imp, ok := e.importRecord(n); ok {
			e.parsed.Imports = append(e.parsed.Imports, imp)
		}

	case "export_statement":
		// export function/class/const ... marks the declaration as exported
		// instead of producing an export record
		if n.ChildByFieldName("declaration") != nil {
			return
		}
		e.parsed.Exports = append(e.parsed.Exports, e.exportRecord(n))
	}
}

func (e *extractor) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(e.source)
}

func (e *extractor) nameOf(n *sitter.Node) string {
	return e.text(n.ChildByFieldName("name"))
}

func (e *extractor) function(n *sitter.Node, name string) model.FunctionRecord {
	fn := model.FunctionRecord{
		Name:       anonymous,
		Parameters: e.parameters(n),
		ReturnType: "unknown",
		IsAsync:    hasToken(n, "async"),
		IsExported: isExported(n),
		Complexity: e.complexity(n),
	}
	fn.StartLine, fn.EndLine, fn.Length = lineSpan(n)

	if name != "" {
		fn.Name = name
	} else if own := e.nameOf(n); own != "" {
		fn.Name = own
	}

	if rt := n.ChildByFieldName("return_type"); rt != nil {
		fn.ReturnType = typeText(e.text(rt))
	}

	return fn
}

func (e *extractor) parameters(n *sitter.Node) []model.Parameter {
	params := make([]model.Parameter, 0)

	// Single unparenthesized arrow parameter: x => x + 1
	if single := n.ChildByFieldName("parameter"); single != nil {
		return append(params, model.Parameter{Name: e.text(single), Type: "any"})
	}

	list := n.ChildByFieldName("parameters")
	if list == nil {
		return params
	}

	for i := 0; i < int(list.NamedChildCount()); i++ {
		child := list.NamedChild(i)
		param := model.Parameter{Type: "any"}

		switch child.Type() {
		case "required_parameter", "optional_parameter":
			pattern := child.ChildByFieldName("pattern")
			if pattern == nil && child.NamedChildCount() > 0 {
				pattern = child.NamedChild(0)
			}
			param.Name = e.text(pattern)
			if t := child.ChildByFieldName("type"); t != nil {
				param.Type = typeText(e.text(t))
			}
			if v := child.ChildByFieldName("value"); v != nil {
				def := e.text(v)
				param.DefaultValue = &def
			}
			param.Optional = child.Type() == "optional_parameter"
		case "assignment_pattern":
			param.Name = e.text(child.ChildByFieldName("left"))
			def := e.text(child.ChildByFieldName("right"))
			param.DefaultValue = &def
		case "identifier", "rest_pattern", "object_pattern", "array_pattern":
			param.Name = e.text(child)
		default:
			continue
		}

		param.Name = strings.TrimPrefix(param.Name, "...")
		if param.Name != "" {
			params = append(params, param)
		}
	}

	return params
}

// complexity counts 1 plus every branching construct in the subtree
func (e *extractor) complexity(fn *sitter.Node) int {
	count := 1

	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		count += e.branchWeight(n)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if e.nested == NestedExclude && isFunctionNode(child) {
				continue
			}
			visit(child)
		}
	}
	visit(fn)

	return count
}

func (e *extractor) branchWeight(n *sitter.Node) int {
	switch n.Type() {
	case "if_statement", "while_statement", "for_statement", "for_in_statement",
		"do_statement", "switch_statement", "switch_case", "catch_clause", "ternary_expression":
		return 1
	case "binary_expression":
		op := n.ChildByFieldName("operator")
		if op != nil && (op.Type() == "&&" || op.Type() == "||") {
			return 1
		}
	}
	return 0
}

func (e *extractor) class(n *sitter.Node) model.ClassRecord {
	cls := model.ClassRecord{
		Name:       anonymous,
		IsExported: isExported(n),
		IsAbstract: n.Type() == "abstract_class_declaration",
		Heritage:   make([]model.Heritage, 0),
		Methods:    make([]model.FunctionRecord, 0),
		Properties: make([]model.PropertyRecord, 0),
	}
	cls.StartLine, cls.EndLine, cls.Length = lineSpan(n)

	if name := e.nameOf(n); name != "" {
		cls.Name = name
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == "class_heritage" {
			cls.Heritage = e.classHeritage(child)
		}
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return cls
	}

	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "method_definition":
			if !isAccessor(member) {
				cls.Methods = append(cls.Methods, e.function(member, ""))
			}
		case "public_field_definition", "field_definition":
			cls.Properties = append(cls.Properties, e.property(member))
		}
	}

	return cls
}

func (e *extractor) classHeritage(n *sitter.Node) []model.Heritage {
	heritage := make([]model.Heritage, 0)

	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		switch clause.Type() {
		case "extends_clause":
			base := strings.TrimSpace(strings.TrimPrefix(e.text(clause), "extends"))
			heritage = append(heritage, model.Heritage{Type: "extends", Types: []string{base}})
		case "implements_clause":
			types := make([]string, 0)
			for j := 0; j < int(clause.NamedChildCount()); j++ {
				types = append(types, e.text(clause.NamedChild(j)))
			}
			heritage = append(heritage, model.Heritage{Type: "implements", Types: types})
		}
	}

	// JavaScript grammar: class_heritage holds the base expression directly
	if len(heritage) == 0 {
		base := strings.TrimSpace(strings.TrimPrefix(e.text(n), "extends"))
		if base != "" {
			heritage = append(heritage, model.Heritage{Type: "extends", Types: []string{base}})
		}
	}

	return heritage
}

func (e *extractor) property(n *sitter.Node) model.PropertyRecord {
	prop := model.PropertyRecord{Name: "<unknown>", Type: "any"}

	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		nameNode = n.ChildByFieldName("property")
	}
	if nameNode != nil {
		prop.Name = e.text(nameNode)
	}
	if t := n.ChildByFieldName("type"); t != nil {
		prop.Type = typeText(e.text(t))
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "static":
			prop.IsStatic = true
		case "readonly":
			prop.IsReadonly = true
		case "accessibility_modifier":
			switch e.text(child) {
			case "private":
				prop.IsPrivate = true
			case "protected":
				prop.IsProtected = true
			}
		}
	}

	return prop
}

func (e *extractor) iface(n *sitter.Node) model.InterfaceRecord {
	rec := model.InterfaceRecord{
		Name:       e.nameOf(n),
		IsExported: isExported(n),
		Heritage:   make([]model.Heritage, 0),
		Properties: make([]model.PropertySignature, 0),
		Methods:    make([]model.MethodSignature, 0),
	}
	rec.StartLine, rec.EndLine, rec.Length = lineSpan(n)

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "extends_type_clause" {
			continue
		}
		types := make([]string, 0)
		for j := 0; j < int(child.NamedChildCount()); j++ {
			types = append(types, e.text(child.NamedChild(j)))
		}
		rec.Heritage = append(rec.Heritage, model.Heritage{Types: types})
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return rec
	}

	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "property_signature":
			prop := model.PropertySignature{
				Name:     e.nameOf(member),
				Type:     "any",
				Optional: hasToken(member, "?"),
			}
			if t := member.ChildByFieldName("type"); t != nil {
				prop.Type = typeText(e.text(t))
			}
			rec.Properties = append(rec.Properties, prop)
		case "method_signature":
			method := model.MethodSignature{
				Name:       e.nameOf(member),
				Parameters: make([]model.SignatureParameter, 0),
				ReturnType: "unknown",
			}
			for _, p := range e.parameters(member) {
				method.Parameters = append(method.Parameters, model.SignatureParameter{
					Name:     p.Name,
					Type:     p.Type,
					Optional: p.Optional,
				})
			}
			if rt := member.ChildByFieldName("return_type"); rt != nil {
				method.ReturnType = typeText(e.text(rt))
			}
			rec.Methods = append(rec.Methods, method)
		}
	}

	return rec
}

func (e *extractor) typeAlias(n *sitter.Node) model.TypeAliasRecord {
	rec := model.TypeAliasRecord{
		Name:       e.nameOf(n),
		Type:       e.text(n.ChildByFieldName("value")),
		IsExported: isExported(n),
	}
	rec.StartLine, rec.EndLine, _ = lineSpan(n)
	return rec
}

func (e *extractor) importRecord(n *sitter.Node) (model.ImportRecord, bool) {
	src := n.ChildByFieldName("source")
	if src == nil {
		// import x = require("y") is not an import declaration
		return model.ImportRecord{}, false
	}

	rec := model.ImportRecord{
		ModuleSpecifier: unquote(e.text(src)),
		Imports:         make([]model.Binding, 0),
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}

		for j := 0; j < int(clause.NamedChildCount()); j++ {
			binding := clause.NamedChild(j)
			switch binding.Type() {
			case "identifier":
				rec.Imports = append(rec.Imports, model.Binding{Type: model.BindingDefault, Name: e.text(binding)})
			case "namespace_import":
				for k := 0; k < int(binding.NamedChildCount()); k++ {
					if id := binding.NamedChild(k); id.Type() == "identifier" {
						rec.Imports = append(rec.Imports, model.Binding{Type: model.BindingNamespace, Name: e.text(id)})
						break
					}
				}
			case "named_imports":
				rec.Imports = append(rec.Imports, e.specifiers(binding, "import_specifier")...)
			}
		}
	}

	return rec, true
}

func (e *extractor) exportRecord(n *sitter.Node) model.ExportRecord {
	if hasToken(n, "=") {
		return model.ExportRecord{
			Type:           model.ExportAssignment,
			IsExportEquals: true,
			Expression:     e.text(lastNamedChild(n)),
		}
	}

	if value := n.ChildByFieldName("value"); value != nil {
		return model.ExportRecord{
			Type:       model.ExportAssignment,
			IsDefault:  true,
			Expression: e.text(value),
		}
	}

	rec := model.ExportRecord{
		Type:    model.ExportDeclaration,
		Exports: make([]model.Binding, 0),
	}
	if src := n.ChildByFieldName("source"); src != nil {
		spec := unquote(e.text(src))
		rec.ModuleSpecifier = &spec
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if clause := n.NamedChild(i); clause.Type() == "export_clause" {
			rec.Exports = append(rec.Exports, e.specifiers(clause, "export_specifier")...)
		}
	}

	return rec
}

// specifiers reads { a, b as c } lists of import or export specifiers
func (e *extractor) specifiers(list *sitter.Node, kind string) []model.Binding {
	bindings := make([]model.Binding, 0)

	for i := 0; i < int(list.NamedChildCount()); i++ {
		spec := list.NamedChild(i)
		if spec.Type() != kind {
			continue
		}
		// { a as b } binds name b; alias keeps the original name a
		b := model.Binding{Type: model.BindingNamed, Name: e.nameOf(spec)}
		if local := spec.ChildByFieldName("alias"); local != nil {
			original := b.Name
			b.Name = e.text(local)
			b.Alias = &original
		}
		bindings = append(bindings, b)
	}

	return bindings
}

func isFunctionNode(n *sitter.Node) bool {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "function_expression",
		"function", "generator_function", "arrow_function", "method_definition":
		return true
	}
	return false
}

func isFunctionExpression(n *sitter.Node) bool {
	switch n.Type() {
	case "arrow_function", "function_expression", "function", "generator_function":
		return true
	}
	return false
}

func isAccessor(n *sitter.Node) bool {
	return hasToken(n, "get") || hasToken(n, "set")
}

// isExported reports whether the export keyword modifies n itself. In
// export const f = () => {} it modifies the variable statement, so the
// function is not exported; export default () => {} exports an expression.
func isExported(n *sitter.Node) bool {
	p := n.Parent()
	return p != nil && p.Type() == "export_statement" && n.Type() != "arrow_function"
}

// hasToken reports whether n has a direct anonymous child of the given kind
func hasToken(n *sitter.Node, kind string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.IsNamed() && child.Type() == kind {
			return true
		}
	}
	return false
}

func lastNamedChild(n *sitter.Node) *sitter.Node {
	count := int(n.NamedChildCount())
	if count == 0 {
		return nil
	}
	return n.NamedChild(count - 1)
}

func lineSpan(n *sitter.Node) (start, end, length int) {
	start = int(n.StartPoint().Row) + 1
	end = int(n.EndPoint().Row) + 1
	return start, end, end - start + 1
}

// typeText strips the leading colon of a type annotation
func typeText(annotation string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(annotation), ":"))
}
