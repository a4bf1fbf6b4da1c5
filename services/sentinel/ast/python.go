// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// PythonParserOption configures a PythonParser instance.
type PythonParserOption func(*PythonParser)

// WithPythonMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Must be positive.
func WithPythonMaxFileSize(bytes int64) PythonParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// PythonParser normalizes Python source files.
//
// Description:
//
//	PythonParser uses tree-sitter to parse Python source and emit the
//	language-agnostic normalized arena. Dynamic attribute access
//	(getattr(obj, "name")) is deliberately left opaque: it normalizes as an
//	ordinary call and is invisible to symbol resolution downstream.
//
// Thread Safety:
//
//	PythonParser instances are safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser instance internally.
//
// Example:
//
//	parser := NewPythonParser()
//	file, err := parser.Parse(ctx, []byte("def hello(): pass"), "main.py")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d nodes\n", len(file.Nodes))
type PythonParser struct {
	maxFileSize int64
}

// NewPythonParser creates a PythonParser with the given options.
//
// Inputs:
//   - opts: Optional configuration functions (WithPythonMaxFileSize).
//
// Outputs:
//   - *PythonParser: Configured parser instance, never nil.
//
// Thread Safety:
//
//	The returned PythonParser is safe for concurrent use.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse normalizes Python source code.
//
// Description:
//
//	Validates the content (size, binary sniff, UTF-8), parses it with
//	tree-sitter and walks the parse tree into a SourceFile arena. Unlike an
//	editor-grade parser this stage is strict: source with syntax errors is
//	rejected as a whole so that downstream graphs never contain half-parsed
//	files.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing;
//     tree-sitter parsing itself cannot be interrupted mid-parse.
//   - content: Raw source bytes.
//   - filePath: Project-relative path with forward slashes. Used for node
//     identity and error reporting.
//
// Outputs:
//   - *SourceFile: The normalized file. Nil on error.
//   - error: ErrFileTooLarge, ErrBinaryFile, ErrInvalidContent, a
//     *ParseError wrapping ErrSyntax, or a context error.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*SourceFile, error) {
	ctx, span := startParseSpan(ctx, "python", filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}
	if looksBinary(content) {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %s", ErrBinaryFile, filePath)
	}
	if len(content) > WarnFileSize {
		slog.Warn("normalizing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %s", ErrInvalidContent, filePath)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	if root == nil {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, &ParseError{Path: filePath, Language: "python", Detail: "nil root node", Err: ErrSyntax}
	}
	if root.HasError() {
		recordParseMetrics("python", time.Since(start), 0, false)
		setParseSpanResult(span, 0, false)
		return nil, &ParseError{Path: filePath, Language: "python", Detail: "syntax errors", Err: ErrSyntax}
	}

	b := newFileBuilder(filePath, "python", content, hex.EncodeToString(hash[:]))
	b.addRoot(root)
	for _, child := range namedChildren(root) {
		p.statement(b, child, 0, "")
	}

	file := b.finish()
	if err := file.Validate(); err != nil {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, &ParseError{Path: filePath, Language: "python", Detail: "structural validation failed", Err: err}
	}

	setParseSpanResult(span, len(file.Nodes), true)
	recordParseMetrics("python", time.Since(start), len(file.Nodes), true)
	return file, nil
}

// Language returns "python".
func (p *PythonParser) Language() string {
	return "python"
}

// Extensions returns the extensions this parser handles.
func (p *PythonParser) Extensions() []string {
	return []string{".py", ".pyi"}
}

// statement normalizes one statement node under parent with the given
// branch role.
func (p *PythonParser) statement(b *fileBuilder, ts *sitter.Node, parent int, branch string) {
	switch ts.Type() {
	case "function_definition":
		p.functionDef(b, ts, parent, branch, nil)

	case "decorated_definition":
		def := ts.ChildByFieldName("definition")
		if def == nil {
			return
		}
		var decorators []*sitter.Node
		for _, child := range namedChildren(ts) {
			if child.Type() == "decorator" {
				decorators = append(decorators, child)
			}
		}
		if def.Type() == "class_definition" {
			p.classDef(b, def, parent, branch, decorators)
		} else {
			p.functionDef(b, def, parent, branch, decorators)
		}

	case "class_definition":
		p.classDef(b, ts, parent, branch, nil)

	case "import_statement":
		p.importStatement(b, ts, parent, branch)

	case "import_from_statement":
		p.importFromStatement(b, ts, parent, branch)

	case "expression_statement":
		for _, child := range namedChildren(ts) {
			switch child.Type() {
			case "assignment", "augmented_assignment":
				p.assignment(b, child, parent, branch)
			case "call":
				idx := p.call(b, child, parent, nil)
				b.setStmt(idx)
				b.setBranch(idx, branch)
			case "string":
				// Docstring; carries no dependence information.
			default:
				p.expr(b, child, parent, false, nil)
			}
		}

	case "if_statement":
		condIdx := b.add(KindIfStmt, ts, parent)
		b.setStmt(condIdx)
		b.setBranch(condIdx, branch)
		if cond := ts.ChildByFieldName("condition"); cond != nil {
			p.expr(b, cond, condIdx, false, nil)
		}
		if cons := ts.ChildByFieldName("consequence"); cons != nil {
			p.blockStatements(b, cons, condIdx, BranchThen)
		}
		// elif chains nest: each elif becomes a conditional in the else
		// role of the one before it.
		attachTo := condIdx
		for _, alt := range namedChildren(ts) {
			switch alt.Type() {
			case "elif_clause":
				elifIdx := b.add(KindIfStmt, alt, attachTo)
				b.setStmt(elifIdx)
				b.setBranch(elifIdx, BranchElse)
				if cond := alt.ChildByFieldName("condition"); cond != nil {
					p.expr(b, cond, elifIdx, false, nil)
				}
				if cons := alt.ChildByFieldName("consequence"); cons != nil {
					p.blockStatements(b, cons, elifIdx, BranchThen)
				}
				attachTo = elifIdx
			case "else_clause":
				if body := alt.ChildByFieldName("body"); body != nil {
					p.blockStatements(b, body, attachTo, BranchElse)
				}
			}
		}

	case "for_statement":
		loopIdx := b.add(KindLoopStmt, ts, parent)
		b.setStmt(loopIdx)
		b.setBranch(loopIdx, branch)
		if left := ts.ChildByFieldName("left"); left != nil {
			for _, name := range p.patternNames(b, left) {
				b.addWrite(loopIdx, name)
			}
		}
		if right := ts.ChildByFieldName("right"); right != nil {
			p.expr(b, right, loopIdx, false, nil)
		}
		if body := ts.ChildByFieldName("body"); body != nil {
			p.blockStatements(b, body, loopIdx, BranchBody)
		}

	case "while_statement":
		loopIdx := b.add(KindLoopStmt, ts, parent)
		b.setStmt(loopIdx)
		b.setBranch(loopIdx, branch)
		if cond := ts.ChildByFieldName("condition"); cond != nil {
			p.expr(b, cond, loopIdx, false, nil)
		}
		if body := ts.ChildByFieldName("body"); body != nil {
			p.blockStatements(b, body, loopIdx, BranchBody)
		}

	case "return_statement":
		retIdx := b.add(KindReturnStmt, ts, parent)
		b.setStmt(retIdx)
		b.setBranch(retIdx, branch)
		if val := ts.NamedChild(0); val != nil {
			p.expr(b, val, retIdx, true, nil)
		}

	case "raise_statement":
		// Raise exits the function like a return; the raised expression is
		// its value.
		retIdx := b.add(KindReturnStmt, ts, parent)
		b.setStmt(retIdx)
		b.setBranch(retIdx, branch)
		if val := ts.NamedChild(0); val != nil {
			p.expr(b, val, retIdx, false, nil)
		}

	case "global_statement", "nonlocal_statement":
		declIdx := b.add(KindScopeDecl, ts, parent)
		b.setStmt(declIdx)
		b.setBranch(declIdx, branch)
		// Name records which scope the declaration re-binds to.
		if ts.Type() == "global_statement" {
			b.setName(declIdx, "global")
		} else {
			b.setName(declIdx, "nonlocal")
		}
		for _, child := range namedChildren(ts) {
			if child.Type() == "identifier" {
				b.f.Nodes[declIdx].Names = append(b.f.Nodes[declIdx].Names, b.text(child))
			}
		}

	case "try_statement":
		// The try body runs unconditionally; except bodies are conditional.
		if body := ts.ChildByFieldName("body"); body != nil {
			p.blockStatements(b, body, parent, branch)
		}
		for _, child := range namedChildren(ts) {
			switch child.Type() {
			case "except_clause":
				exIdx := b.add(KindIfStmt, child, parent)
				b.setStmt(exIdx)
				b.setBranch(exIdx, branch)
				for _, sub := range namedChildren(child) {
					if sub.Type() == "block" {
						p.blockStatements(b, sub, exIdx, BranchThen)
					}
				}
			case "finally_clause", "else_clause":
				for _, sub := range namedChildren(child) {
					if sub.Type() == "block" {
						p.blockStatements(b, sub, parent, branch)
					}
				}
			}
		}

	case "with_statement":
		for _, child := range namedChildren(ts) {
			if child.Type() != "with_clause" {
				continue
			}
			for _, item := range namedChildren(child) {
				if item.Type() != "with_item" {
					continue
				}
				val := item.ChildByFieldName("value")
				if val == nil {
					continue
				}
				if val.Type() == "as_pattern" {
					asgIdx := b.add(KindAssignment, item, parent)
					b.setStmt(asgIdx)
					b.setBranch(asgIdx, branch)
					// The context expression is the first named child; only
					// the alias carries a field name in this grammar.
					if v := val.NamedChild(0); v != nil {
						p.expr(b, v, asgIdx, true, nil)
					}
					if alias := val.ChildByFieldName("alias"); alias != nil {
						for _, name := range p.patternNames(b, alias) {
							b.addWrite(asgIdx, name)
						}
					}
				} else {
					p.expr(b, val, parent, false, nil)
				}
			}
		}
		if body := ts.ChildByFieldName("body"); body != nil {
			p.blockStatements(b, body, parent, branch)
		}

	case "match_statement":
		condIdx := b.add(KindIfStmt, ts, parent)
		b.setStmt(condIdx)
		b.setBranch(condIdx, branch)
		if subject := ts.ChildByFieldName("subject"); subject != nil {
			p.expr(b, subject, condIdx, false, nil)
		}
		for _, child := range namedChildren(ts) {
			if child.Type() == "case_clause" {
				if body := child.ChildByFieldName("consequence"); body != nil {
					p.blockStatements(b, body, condIdx, BranchThen)
				}
			}
		}

	case "pass_statement", "break_statement", "continue_statement", "comment":
		// No dependence contribution.

	default:
		// Unknown statement forms still get scanned for nested calls so a
		// grammar addition cannot hide a call site.
		p.expr(b, ts, parent, false, nil)
	}
}

// blockStatements walks the statements of a block node.
func (p *PythonParser) blockStatements(b *fileBuilder, block *sitter.Node, parent int, branch string) {
	if block.Type() != "block" {
		p.statement(b, block, parent, branch)
		return
	}
	for _, child := range namedChildren(block) {
		p.statement(b, child, parent, branch)
	}
}

// functionDef normalizes a function or method definition.
func (p *PythonParser) functionDef(b *fileBuilder, ts *sitter.Node, parent int, branch string, decorators []*sitter.Node) {
	nameNode := ts.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := b.text(nameNode)

	fnIdx := b.add(KindFunctionDef, ts, parent)
	b.setName(fnIdx, name)
	b.setStmt(fnIdx)
	b.setBranch(fnIdx, branch)
	b.setExported(fnIdx, !strings.HasPrefix(name, "_"))
	b.addWrite(fnIdx, name)

	// Decorator expressions evaluate in the enclosing scope at definition
	// time; their call sites attach to the definition node.
	for _, dec := range decorators {
		for _, child := range namedChildren(dec) {
			p.expr(b, child, fnIdx, false, nil)
		}
	}

	if params := ts.ChildByFieldName("parameters"); params != nil {
		for _, param := range namedChildren(params) {
			p.param(b, param, fnIdx)
		}
	}
	if body := ts.ChildByFieldName("body"); body != nil {
		p.blockStatements(b, body, fnIdx, "")
	}
}

// param normalizes one parameter, unwrapping typed/default/splat forms.
func (p *PythonParser) param(b *fileBuilder, ts *sitter.Node, fnIdx int) {
	var nameNode *sitter.Node
	switch ts.Type() {
	case "identifier":
		nameNode = ts
	case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
		if c := ts.NamedChild(0); c != nil && c.Type() == "identifier" {
			nameNode = c
		}
	case "default_parameter", "typed_default_parameter":
		nameNode = ts.ChildByFieldName("name")
		// Default values evaluate at definition time in the outer scope.
		if val := ts.ChildByFieldName("value"); val != nil {
			p.expr(b, val, fnIdx, false, nil)
		}
	case "keyword_separator", "positional_separator":
		return
	}
	if nameNode == nil {
		return
	}
	name := b.text(nameNode)
	paramIdx := b.add(KindParam, ts, fnIdx)
	b.setName(paramIdx, name)
	b.addWrite(paramIdx, name)
}

// classDef normalizes a class definition and its body.
func (p *PythonParser) classDef(b *fileBuilder, ts *sitter.Node, parent int, branch string, decorators []*sitter.Node) {
	nameNode := ts.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := b.text(nameNode)

	clsIdx := b.add(KindClassDef, ts, parent)
	b.setName(clsIdx, name)
	b.setStmt(clsIdx)
	b.setBranch(clsIdx, branch)
	b.setExported(clsIdx, !strings.HasPrefix(name, "_"))
	b.addWrite(clsIdx, name)

	for _, dec := range decorators {
		for _, child := range namedChildren(dec) {
			p.expr(b, child, clsIdx, false, nil)
		}
	}
	if supers := ts.ChildByFieldName("superclasses"); supers != nil {
		for _, super := range namedChildren(supers) {
			p.expr(b, super, clsIdx, false, nil)
		}
	}
	if body := ts.ChildByFieldName("body"); body != nil {
		p.blockStatements(b, body, clsIdx, "")
	}
}

// importStatement normalizes `import a.b` / `import a.b as c`, one
// import_stmt node per imported module.
func (p *PythonParser) importStatement(b *fileBuilder, ts *sitter.Node, parent int, branch string) {
	for _, child := range namedChildren(ts) {
		switch child.Type() {
		case "dotted_name":
			// The node anchors at the imported name so `import a, b`
			// yields two nodes with distinct byte ranges.
			spec := b.text(child)
			idx := b.add(KindImportStmt, child, parent)
			b.setStmt(idx)
			b.setBranch(idx, branch)
			// `import a.b` binds the root package name.
			b.setName(idx, strings.SplitN(spec, ".", 2)[0])
			b.setImport(idx, &ImportInfo{Specifier: spec})
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			if nameNode == nil || aliasNode == nil {
				continue
			}
			idx := b.add(KindImportStmt, child, parent)
			b.setStmt(idx)
			b.setBranch(idx, branch)
			b.setName(idx, b.text(aliasNode))
			b.setImport(idx, &ImportInfo{Specifier: b.text(nameNode)})
		}
	}
}

// importFromStatement normalizes `from m import x, y as z`, `from . import
// m` and `from m import *`.
func (p *PythonParser) importFromStatement(b *fileBuilder, ts *sitter.Node, parent int, branch string) {
	info := &ImportInfo{}
	moduleNode := ts.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	switch moduleNode.Type() {
	case "dotted_name":
		info.Specifier = b.text(moduleNode)
	case "relative_import":
		raw := b.text(moduleNode)
		trimmed := strings.TrimLeft(raw, ".")
		info.Level = len(raw) - len(trimmed)
		info.Specifier = trimmed
		if info.Specifier == "" {
			info.Specifier = "."
		}
	default:
		info.Specifier = b.text(moduleNode)
	}

	for _, child := range namedChildren(ts) {
		// Node wrappers are not pointer-comparable; match the module child
		// by byte range.
		if child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
			continue
		}
		switch child.Type() {
		case "wildcard_import":
			info.Wildcard = true
		case "dotted_name":
			name := b.text(child)
			info.Names = append(info.Names, ImportedName{Name: name, Alias: name})
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			if nameNode == nil || aliasNode == nil {
				continue
			}
			info.Names = append(info.Names, ImportedName{Name: b.text(nameNode), Alias: b.text(aliasNode)})
		}
	}

	idx := b.add(KindImportStmt, ts, parent)
	b.setStmt(idx)
	b.setBranch(idx, branch)
	b.setImport(idx, info)
}

// assignment normalizes plain and augmented assignments.
func (p *PythonParser) assignment(b *fileBuilder, ts *sitter.Node, parent int, branch string) {
	idx := b.add(KindAssignment, ts, parent)
	b.setStmt(idx)
	b.setBranch(idx, branch)

	if left := ts.ChildByFieldName("left"); left != nil {
		for _, name := range p.patternNames(b, left) {
			b.addWrite(idx, name)
		}
		// Subscript targets read their index; attribute and subscript
		// targets mutate their base object, which the write already covers.
		if left.Type() == "subscript" {
			if sub := left.ChildByFieldName("subscript"); sub != nil {
				p.expr(b, sub, idx, false, nil)
			}
		}
	}
	if ts.Type() == "augmented_assignment" {
		// x += y reads the old x.
		if left := ts.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
			b.addRead(idx, b.text(left), nil)
		}
	}
	if right := ts.ChildByFieldName("right"); right != nil {
		p.expr(b, right, idx, true, nil)
	}
}

// patternNames extracts the written variable names of an assignment target
// or loop pattern. Attribute and subscript targets resolve to their base
// object name: writing a.b marks a as written.
func (p *PythonParser) patternNames(b *fileBuilder, ts *sitter.Node) []string {
	switch ts.Type() {
	case "identifier":
		return []string{b.text(ts)}
	case "attribute", "subscript":
		if root := expressionRootIdentifier(b, ts); root != "" {
			return []string{root}
		}
		return nil
	case "pattern_list", "tuple_pattern", "list_pattern", "expression_list":
		var names []string
		for _, child := range namedChildren(ts) {
			names = append(names, p.patternNames(b, child)...)
		}
		return names
	case "as_pattern_target":
		if c := ts.NamedChild(0); c != nil {
			return p.patternNames(b, c)
		}
	}
	return nil
}

// expr walks an expression, attributing reads to consumer and creating call
// and literal nodes. valuePos marks direct value positions (call arguments,
// assignment right sides, return values) where literals become nodes.
func (p *PythonParser) expr(b *fileBuilder, ts *sitter.Node, consumer int, valuePos bool, shadows map[string]bool) {
	switch ts.Type() {
	case "call":
		p.call(b, ts, consumer, shadows)

	case "identifier":
		b.addRead(consumer, b.text(ts), shadows)

	case "attribute", "subscript":
		if root := expressionRootIdentifier(b, ts); root != "" {
			b.addRead(consumer, root, shadows)
		}
		if ts.Type() == "subscript" {
			if sub := ts.ChildByFieldName("subscript"); sub != nil {
				p.expr(b, sub, consumer, false, shadows)
			}
		}
		// An attribute chain rooted in a call still contains that call.
		for inner := ts; inner != nil; {
			obj := inner.ChildByFieldName("object")
			if obj == nil {
				obj = inner.ChildByFieldName("value")
			}
			if obj == nil {
				break
			}
			if obj.Type() == "call" {
				p.call(b, obj, consumer, shadows)
				break
			}
			if obj.Type() != "attribute" && obj.Type() != "subscript" {
				break
			}
			inner = obj
		}

	case "string", "concatenated_string", "integer", "float", "true", "false", "none":
		if valuePos {
			litIdx := b.add(KindLiteral, ts, consumer)
			b.setLiteralValue(litIdx, b.text(ts))
		}
		if ts.Type() == "string" {
			// f-string interpolations read real variables.
			for _, child := range namedChildren(ts) {
				if child.Type() == "interpolation" {
					for _, sub := range namedChildren(child) {
						p.expr(b, sub, consumer, false, shadows)
					}
				}
			}
		}

	case "lambda":
		inner := cloneShadows(shadows)
		if params := ts.ChildByFieldName("parameters"); params != nil {
			for _, param := range namedChildren(params) {
				for _, name := range p.patternNames(b, param) {
					inner[name] = true
				}
				if param.Type() == "identifier" {
					inner[b.text(param)] = true
				}
			}
		}
		if body := ts.ChildByFieldName("body"); body != nil {
			p.expr(b, body, consumer, false, inner)
		}

	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		inner := cloneShadows(shadows)
		for _, child := range namedChildren(ts) {
			if child.Type() == "for_in_clause" {
				if left := child.ChildByFieldName("left"); left != nil {
					for _, name := range p.patternNames(b, left) {
						inner[name] = true
					}
				}
			}
		}
		for _, child := range namedChildren(ts) {
			p.expr(b, child, consumer, false, inner)
		}

	case "for_in_clause":
		if right := ts.ChildByFieldName("right"); right != nil {
			p.expr(b, right, consumer, false, shadows)
		}

	case "keyword_argument":
		if val := ts.ChildByFieldName("value"); val != nil {
			p.expr(b, val, consumer, valuePos, shadows)
		}

	case "comment":
		// Nothing.

	default:
		for _, child := range namedChildren(ts) {
			p.expr(b, child, consumer, false, shadows)
		}
	}
}

// call normalizes a call expression under its value consumer and returns
// the new node index.
func (p *PythonParser) call(b *fileBuilder, ts *sitter.Node, parent int, shadows map[string]bool) int {
	fn := ts.ChildByFieldName("function")
	callee := calleePath(b, fn)
	if callee == "" {
		callee = strings.TrimSpace(b.text(fn))
	}
	if callee == "" {
		callee = "<anonymous>"
	}

	callIdx := b.add(KindCallExpr, ts, parent)
	b.setCallee(callIdx, callee)

	if fn != nil {
		switch fn.Type() {
		case "attribute":
			if root := expressionRootIdentifier(b, fn); root != "" {
				b.addRead(callIdx, root, shadows)
			}
			// get_db().query(...) nests the inner call under this one.
			for inner := fn; inner != nil; {
				obj := inner.ChildByFieldName("object")
				if obj == nil {
					break
				}
				if obj.Type() == "call" {
					p.call(b, obj, callIdx, shadows)
					break
				}
				if obj.Type() != "attribute" && obj.Type() != "subscript" {
					break
				}
				inner = obj
			}
		case "call":
			p.call(b, fn, callIdx, shadows)
		case "subscript":
			if root := expressionRootIdentifier(b, fn); root != "" {
				b.addRead(callIdx, root, shadows)
			}
		}
	}

	if args := ts.ChildByFieldName("arguments"); args != nil {
		for _, arg := range namedChildren(args) {
			p.expr(b, arg, callIdx, true, shadows)
		}
	}
	return callIdx
}

// calleePath flattens a callee expression into a dotted path: identifier
// chains keep their text, anything else collapses to the raw source text.
func calleePath(b *fileBuilder, fn *sitter.Node) string {
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return b.text(fn)
	case "attribute":
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if attr == nil {
			return strings.TrimSpace(b.text(fn))
		}
		prefix := calleePath(b, obj)
		if prefix == "" {
			prefix = strings.TrimSpace(b.text(obj))
		}
		return prefix + "." + b.text(attr)
	default:
		return strings.TrimSpace(b.text(fn))
	}
}

// expressionRootIdentifier returns the leftmost identifier of an attribute
// or subscript chain, or "" when the chain is rooted in something else.
func expressionRootIdentifier(b *fileBuilder, ts *sitter.Node) string {
	for ts != nil {
		switch ts.Type() {
		case "identifier":
			return b.text(ts)
		case "attribute":
			ts = ts.ChildByFieldName("object")
		case "subscript":
			ts = ts.ChildByFieldName("value")
		case "member_expression":
			ts = ts.ChildByFieldName("object")
		case "subscript_expression":
			ts = ts.ChildByFieldName("object")
		default:
			return ""
		}
	}
	return ""
}
