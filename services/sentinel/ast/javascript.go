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
	"github.com/smacker/go-tree-sitter/javascript"
)

// JavaScriptParserOption configures a JavaScriptParser instance.
type JavaScriptParserOption func(*JavaScriptParser)

// WithJavaScriptMaxFileSize sets the maximum file size the parser accepts.
func WithJavaScriptMaxFileSize(bytes int64) JavaScriptParserOption {
	return func(p *JavaScriptParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// JavaScriptParser normalizes JavaScript source files.
//
// Description:
//
//	Handles both ES modules (import/export) and CommonJS (require). The
//	statement and expression walk is shared with the TypeScript parser:
//	the two grammars agree on everything this stage extracts, TypeScript
//	merely adds declaration forms on top.
//
// Thread Safety:
//
//	Safe for concurrent use; each Parse call creates its own tree-sitter
//	parser instance.
type JavaScriptParser struct {
	maxFileSize int64
	walker      jsWalker
}

// NewJavaScriptParser creates a JavaScriptParser with the given options.
func NewJavaScriptParser(opts ...JavaScriptParserOption) *JavaScriptParser {
	p := &JavaScriptParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse normalizes JavaScript source code. See PythonParser.Parse for the
// shared contract; only the grammar differs.
func (p *JavaScriptParser) Parse(ctx context.Context, content []byte, filePath string) (*SourceFile, error) {
	return parseWithGrammar(ctx, parseRequest{
		language:    "javascript",
		grammar:     javascript.GetLanguage(),
		maxFileSize: p.maxFileSize,
		walker:      &p.walker,
	}, content, filePath)
}

// Language returns "javascript".
func (p *JavaScriptParser) Language() string {
	return "javascript"
}

// Extensions returns the extensions this parser handles.
func (p *JavaScriptParser) Extensions() []string {
	return []string{".js", ".jsx", ".mjs", ".cjs"}
}

// parseRequest bundles the per-language inputs of parseWithGrammar.
type parseRequest struct {
	language    string
	grammar     *sitter.Language
	maxFileSize int64
	walker      *jsWalker
}

// parseWithGrammar is the shared Parse implementation for the JavaScript
// and TypeScript front-ends.
func parseWithGrammar(ctx context.Context, req parseRequest, content []byte, filePath string) (*SourceFile, error) {
	ctx, span := startParseSpan(ctx, req.language, filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(req.language, time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(content)) > req.maxFileSize {
		recordParseMetrics(req.language, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), req.maxFileSize)
	}
	if looksBinary(content) {
		recordParseMetrics(req.language, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %s", ErrBinaryFile, filePath)
	}
	if len(content) > WarnFileSize {
		slog.Warn("normalizing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		recordParseMetrics(req.language, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %s", ErrInvalidContent, filePath)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(req.grammar)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(req.language, time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(req.language, time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	if root == nil {
		recordParseMetrics(req.language, time.Since(start), 0, false)
		return nil, &ParseError{Path: filePath, Language: req.language, Detail: "nil root node", Err: ErrSyntax}
	}
	if root.HasError() {
		recordParseMetrics(req.language, time.Since(start), 0, false)
		setParseSpanResult(span, 0, false)
		return nil, &ParseError{Path: filePath, Language: req.language, Detail: "syntax errors", Err: ErrSyntax}
	}

	b := newFileBuilder(filePath, req.language, content, hex.EncodeToString(hash[:]))
	b.addRoot(root)
	for _, child := range namedChildren(root) {
		req.walker.statement(b, child, 0, "", false)
	}

	file := b.finish()
	if err := file.Validate(); err != nil {
		recordParseMetrics(req.language, time.Since(start), 0, false)
		return nil, &ParseError{Path: filePath, Language: req.language, Detail: "structural validation failed", Err: err}
	}

	setParseSpanResult(span, len(file.Nodes), true)
	recordParseMetrics(req.language, time.Since(start), len(file.Nodes), true)
	return file, nil
}

// jsWalker holds the statement and expression walk shared by the
// JavaScript and TypeScript parsers. It is stateless; all state lives in
// the fileBuilder.
type jsWalker struct{}

// statement normalizes one statement. exported marks statements nested
// directly under an export_statement.
func (w *jsWalker) statement(b *fileBuilder, ts *sitter.Node, parent int, branch string, exported bool) {
	switch ts.Type() {
	case "function_declaration", "generator_function_declaration":
		w.functionDef(b, ts, parent, branch, exported)

	case "class_declaration", "abstract_class_declaration":
		w.classDef(b, ts, parent, branch, exported)

	case "interface_declaration", "enum_declaration":
		// TypeScript-only declaration forms; importable symbols like
		// classes.
		w.classDef(b, ts, parent, branch, exported)

	case "type_alias_declaration":
		if nameNode := ts.ChildByFieldName("name"); nameNode != nil {
			idx := b.add(KindClassDef, ts, parent)
			name := b.text(nameNode)
			b.setName(idx, name)
			b.setStmt(idx)
			b.setBranch(idx, branch)
			b.setExported(idx, exported || !strings.HasPrefix(name, "_"))
		}

	case "lexical_declaration", "variable_declaration":
		for _, child := range namedChildren(ts) {
			if child.Type() == "variable_declarator" {
				w.declarator(b, child, parent, branch, exported)
			}
		}

	case "expression_statement":
		for _, child := range namedChildren(ts) {
			switch child.Type() {
			case "assignment_expression", "augmented_assignment_expression":
				w.assignment(b, child, parent, branch)
			case "call_expression":
				idx := w.call(b, child, parent, nil)
				if idx >= 0 {
					b.setStmt(idx)
					b.setBranch(idx, branch)
				}
			default:
				w.expr(b, child, parent, false, nil)
			}
		}

	case "import_statement":
		w.importStatement(b, ts, parent, branch)

	case "export_statement":
		w.exportStatement(b, ts, parent, branch)

	case "if_statement":
		condIdx := b.add(KindIfStmt, ts, parent)
		b.setStmt(condIdx)
		b.setBranch(condIdx, branch)
		if cond := ts.ChildByFieldName("condition"); cond != nil {
			w.expr(b, cond, condIdx, false, nil)
		}
		if cons := ts.ChildByFieldName("consequence"); cons != nil {
			w.blockStatements(b, cons, condIdx, BranchThen)
		}
		if alt := ts.ChildByFieldName("alternative"); alt != nil {
			// else_clause wraps either a block or a chained if.
			for _, child := range namedChildren(alt) {
				w.blockStatements(b, child, condIdx, BranchElse)
			}
		}

	case "for_statement":
		loopIdx := b.add(KindLoopStmt, ts, parent)
		b.setStmt(loopIdx)
		b.setBranch(loopIdx, branch)
		if init := ts.ChildByFieldName("initializer"); init != nil {
			w.blockStatements(b, init, loopIdx, BranchBody)
		}
		if cond := ts.ChildByFieldName("condition"); cond != nil {
			w.expr(b, cond, loopIdx, false, nil)
		}
		if inc := ts.ChildByFieldName("increment"); inc != nil {
			w.expr(b, inc, loopIdx, false, nil)
		}
		if body := ts.ChildByFieldName("body"); body != nil {
			w.blockStatements(b, body, loopIdx, BranchBody)
		}

	case "for_in_statement":
		loopIdx := b.add(KindLoopStmt, ts, parent)
		b.setStmt(loopIdx)
		b.setBranch(loopIdx, branch)
		if left := ts.ChildByFieldName("left"); left != nil {
			for _, name := range w.patternNames(b, left) {
				b.addWrite(loopIdx, name)
			}
		}
		if right := ts.ChildByFieldName("right"); right != nil {
			w.expr(b, right, loopIdx, false, nil)
		}
		if body := ts.ChildByFieldName("body"); body != nil {
			w.blockStatements(b, body, loopIdx, BranchBody)
		}

	case "while_statement", "do_statement":
		loopIdx := b.add(KindLoopStmt, ts, parent)
		b.setStmt(loopIdx)
		b.setBranch(loopIdx, branch)
		if cond := ts.ChildByFieldName("condition"); cond != nil {
			w.expr(b, cond, loopIdx, false, nil)
		}
		if body := ts.ChildByFieldName("body"); body != nil {
			w.blockStatements(b, body, loopIdx, BranchBody)
		}

	case "return_statement", "throw_statement":
		retIdx := b.add(KindReturnStmt, ts, parent)
		b.setStmt(retIdx)
		b.setBranch(retIdx, branch)
		if val := ts.NamedChild(0); val != nil {
			w.expr(b, val, retIdx, true, nil)
		}

	case "try_statement":
		if body := ts.ChildByFieldName("body"); body != nil {
			w.blockStatements(b, body, parent, branch)
		}
		if handler := ts.ChildByFieldName("handler"); handler != nil {
			exIdx := b.add(KindIfStmt, handler, parent)
			b.setStmt(exIdx)
			b.setBranch(exIdx, branch)
			if hbody := handler.ChildByFieldName("body"); hbody != nil {
				w.blockStatements(b, hbody, exIdx, BranchThen)
			}
		}
		if fin := ts.ChildByFieldName("finalizer"); fin != nil {
			for _, child := range namedChildren(fin) {
				w.blockStatements(b, child, parent, branch)
			}
		}

	case "switch_statement":
		condIdx := b.add(KindIfStmt, ts, parent)
		b.setStmt(condIdx)
		b.setBranch(condIdx, branch)
		if val := ts.ChildByFieldName("value"); val != nil {
			w.expr(b, val, condIdx, false, nil)
		}
		if body := ts.ChildByFieldName("body"); body != nil {
			for _, clause := range namedChildren(body) {
				switch clause.Type() {
				case "switch_case":
					val := clause.ChildByFieldName("value")
					if val != nil {
						w.expr(b, val, condIdx, false, nil)
					}
					for _, stmt := range namedChildren(clause) {
						// Node wrappers are not pointer-comparable; match
						// the value child by byte range.
						if val != nil && stmt.StartByte() == val.StartByte() && stmt.EndByte() == val.EndByte() {
							continue
						}
						w.statement(b, stmt, condIdx, BranchThen, false)
					}
				case "switch_default":
					for _, stmt := range namedChildren(clause) {
						w.statement(b, stmt, condIdx, BranchElse, false)
					}
				}
			}
		}

	case "statement_block":
		w.blockStatements(b, ts, parent, branch)

	case "empty_statement", "comment", "break_statement", "continue_statement",
		"debugger_statement", "import_alias", "ambient_declaration":
		// No dependence contribution.

	default:
		w.expr(b, ts, parent, false, nil)
	}
}

// blockStatements walks a statement_block (or a single statement used as a
// block body).
func (w *jsWalker) blockStatements(b *fileBuilder, block *sitter.Node, parent int, branch string) {
	if block.Type() != "statement_block" {
		w.statement(b, block, parent, branch, false)
		return
	}
	for _, child := range namedChildren(block) {
		w.statement(b, child, parent, branch, false)
	}
}

// functionDef normalizes function and generator declarations, class
// methods, and named function expressions.
func (w *jsWalker) functionDef(b *fileBuilder, ts *sitter.Node, parent int, branch string, exported bool) int {
	nameNode := ts.ChildByFieldName("name")
	if nameNode == nil {
		return -1
	}
	name := b.text(nameNode)

	fnIdx := b.add(KindFunctionDef, ts, parent)
	b.setName(fnIdx, name)
	b.setStmt(fnIdx)
	b.setBranch(fnIdx, branch)
	b.setExported(fnIdx, exported || !strings.HasPrefix(name, "_"))
	b.addWrite(fnIdx, name)

	w.params(b, ts.ChildByFieldName("parameters"), fnIdx)
	if body := ts.ChildByFieldName("body"); body != nil {
		w.blockStatements(b, body, fnIdx, "")
	}
	return fnIdx
}

// params normalizes a formal_parameters list, unwrapping the TypeScript
// required/optional parameter wrappers.
func (w *jsWalker) params(b *fileBuilder, params *sitter.Node, fnIdx int) {
	if params == nil {
		return
	}
	for _, param := range namedChildren(params) {
		target := param
		switch param.Type() {
		case "required_parameter", "optional_parameter":
			if pat := param.ChildByFieldName("pattern"); pat != nil {
				target = pat
			}
		case "assignment_pattern":
			if left := param.ChildByFieldName("left"); left != nil {
				target = left
			}
			if right := param.ChildByFieldName("right"); right != nil {
				w.expr(b, right, fnIdx, false, nil)
			}
		case "rest_pattern":
			if c := param.NamedChild(0); c != nil {
				target = c
			}
		}
		names := w.patternNames(b, target)
		if len(names) == 0 {
			continue
		}
		paramIdx := b.add(KindParam, param, fnIdx)
		b.setName(paramIdx, names[0])
		for _, name := range names {
			b.addWrite(paramIdx, name)
		}
	}
}

// classDef normalizes class, interface and enum declarations with their
// method bodies, returning the definition node index.
func (w *jsWalker) classDef(b *fileBuilder, ts *sitter.Node, parent int, branch string, exported bool) int {
	nameNode := ts.ChildByFieldName("name")
	if nameNode == nil {
		return -1
	}
	name := b.text(nameNode)

	clsIdx := b.add(KindClassDef, ts, parent)
	b.setName(clsIdx, name)
	b.setStmt(clsIdx)
	b.setBranch(clsIdx, branch)
	b.setExported(clsIdx, exported || !strings.HasPrefix(name, "_"))
	b.addWrite(clsIdx, name)

	body := ts.ChildByFieldName("body")
	if body == nil {
		return clsIdx
	}
	for _, member := range namedChildren(body) {
		switch member.Type() {
		case "method_definition":
			w.functionDef(b, member, clsIdx, "", false)
		case "public_field_definition", "field_definition", "property_signature":
			if val := member.ChildByFieldName("value"); val != nil {
				asgIdx := b.add(KindAssignment, member, clsIdx)
				if n := member.ChildByFieldName("name"); n != nil {
					b.addWrite(asgIdx, b.text(n))
				}
				w.expr(b, val, asgIdx, true, nil)
			}
		}
	}
	return clsIdx
}

// declarator normalizes one variable_declarator. A declarator whose value
// is require('specifier') becomes an import binding instead of an
// assignment.
func (w *jsWalker) declarator(b *fileBuilder, ts *sitter.Node, parent int, branch string, exported bool) {
	nameNode := ts.ChildByFieldName("name")
	value := ts.ChildByFieldName("value")
	if nameNode == nil {
		return
	}

	if spec, ok := requireSpecifier(b, value); ok {
		idx := b.add(KindImportStmt, ts, parent)
		b.setStmt(idx)
		b.setBranch(idx, branch)
		info := &ImportInfo{Specifier: spec}
		switch nameNode.Type() {
		case "identifier":
			// const db = require('./db') binds the module object.
			b.setName(idx, b.text(nameNode))
		case "object_pattern":
			// const {query, exec: run} = require('./db') binds members.
			for _, prop := range namedChildren(nameNode) {
				switch prop.Type() {
				case "shorthand_property_identifier_pattern":
					name := b.text(prop)
					info.Names = append(info.Names, ImportedName{Name: name, Alias: name})
				case "pair_pattern":
					key := prop.ChildByFieldName("key")
					val := prop.ChildByFieldName("value")
					if key != nil && val != nil {
						info.Names = append(info.Names, ImportedName{Name: b.text(key), Alias: b.text(val)})
					}
				}
			}
		}
		b.setImport(idx, info)
		return
	}

	// Arrow functions and function expressions assigned to a name are
	// definitions for resolution purposes.
	if value != nil && (value.Type() == "arrow_function" || value.Type() == "function_expression" || value.Type() == "function") {
		name := ""
		if nameNode.Type() == "identifier" {
			name = b.text(nameNode)
		}
		if name != "" {
			fnIdx := b.add(KindFunctionDef, ts, parent)
			b.setName(fnIdx, name)
			b.setStmt(fnIdx)
			b.setBranch(fnIdx, branch)
			b.setExported(fnIdx, exported || !strings.HasPrefix(name, "_"))
			b.addWrite(fnIdx, name)
			w.params(b, value.ChildByFieldName("parameters"), fnIdx)
			if p := value.ChildByFieldName("parameter"); p != nil {
				names := w.patternNames(b, p)
				if len(names) > 0 {
					paramIdx := b.add(KindParam, p, fnIdx)
					b.setName(paramIdx, names[0])
					b.addWrite(paramIdx, names[0])
				}
			}
			if body := value.ChildByFieldName("body"); body != nil {
				if body.Type() == "statement_block" {
					w.blockStatements(b, body, fnIdx, "")
				} else {
					// Expression-bodied arrow: the body is its return value.
					retIdx := b.add(KindReturnStmt, body, fnIdx)
					b.setStmt(retIdx)
					w.expr(b, body, retIdx, true, nil)
				}
			}
			return
		}
	}

	asgIdx := b.add(KindAssignment, ts, parent)
	b.setStmt(asgIdx)
	b.setBranch(asgIdx, branch)
	for _, name := range w.patternNames(b, nameNode) {
		b.addWrite(asgIdx, name)
	}
	if value != nil {
		w.expr(b, value, asgIdx, true, nil)
	}
}

// assignment normalizes assignment and compound-assignment expressions.
func (w *jsWalker) assignment(b *fileBuilder, ts *sitter.Node, parent int, branch string) {
	idx := b.add(KindAssignment, ts, parent)
	b.setStmt(idx)
	b.setBranch(idx, branch)

	if left := ts.ChildByFieldName("left"); left != nil {
		for _, name := range w.patternNames(b, left) {
			b.addWrite(idx, name)
		}
		if ts.Type() == "augmented_assignment_expression" && left.Type() == "identifier" {
			b.addRead(idx, b.text(left), nil)
		}
	}
	if right := ts.ChildByFieldName("right"); right != nil {
		w.expr(b, right, idx, true, nil)
	}
}

// importStatement normalizes ES module imports.
func (w *jsWalker) importStatement(b *fileBuilder, ts *sitter.Node, parent int, branch string) {
	source := ts.ChildByFieldName("source")
	if source == nil {
		return
	}
	info := &ImportInfo{Specifier: stringLiteralValue(b, source)}

	idx := b.add(KindImportStmt, ts, parent)
	b.setStmt(idx)
	b.setBranch(idx, branch)

	for _, child := range namedChildren(ts) {
		if child.Type() != "import_clause" {
			continue
		}
		for _, clause := range namedChildren(child) {
			switch clause.Type() {
			case "identifier":
				// Default import binds the module's default symbol.
				name := b.text(clause)
				info.Names = append(info.Names, ImportedName{Name: "default", Alias: name})
			case "namespace_import":
				// import * as ns binds the module object.
				if id := clause.NamedChild(0); id != nil {
					b.setName(idx, b.text(id))
				}
			case "named_imports":
				for _, spec := range namedChildren(clause) {
					if spec.Type() != "import_specifier" {
						continue
					}
					nameNode := spec.ChildByFieldName("name")
					aliasNode := spec.ChildByFieldName("alias")
					if nameNode == nil {
						continue
					}
					name := b.text(nameNode)
					alias := name
					if aliasNode != nil {
						alias = b.text(aliasNode)
					}
					info.Names = append(info.Names, ImportedName{Name: name, Alias: alias})
				}
			}
		}
	}
	b.setImport(idx, info)
}

// exportStatement normalizes export declarations and re-exports.
func (w *jsWalker) exportStatement(b *fileBuilder, ts *sitter.Node, parent int, branch string) {
	source := ts.ChildByFieldName("source")

	if source != nil {
		// export ... from 'm' is a re-export: an import that re-publishes.
		info := &ImportInfo{Specifier: stringLiteralValue(b, source), ReExport: true}
		idx := b.add(KindImportStmt, ts, parent)
		b.setStmt(idx)
		b.setBranch(idx, branch)
		wildcard := true
		for _, child := range namedChildren(ts) {
			if child.Type() == "export_clause" {
				wildcard = false
				for _, spec := range namedChildren(child) {
					if spec.Type() != "export_specifier" {
						continue
					}
					nameNode := spec.ChildByFieldName("name")
					aliasNode := spec.ChildByFieldName("alias")
					if nameNode == nil {
						continue
					}
					name := b.text(nameNode)
					alias := name
					if aliasNode != nil {
						alias = b.text(aliasNode)
					}
					info.Names = append(info.Names, ImportedName{Name: name, Alias: alias})
				}
			}
		}
		info.Wildcard = wildcard
		b.setImport(idx, info)
		return
	}

	isDefault := false
	for i := 0; i < int(ts.ChildCount()); i++ {
		if c := ts.Child(i); c != nil && c.Type() == "default" {
			isDefault = true
			break
		}
	}

	if decl := ts.ChildByFieldName("declaration"); decl != nil {
		idx := -1
		switch decl.Type() {
		case "function_declaration", "generator_function_declaration":
			idx = w.functionDef(b, decl, parent, branch, true)
		case "class_declaration", "abstract_class_declaration":
			idx = w.classDef(b, decl, parent, branch, true)
		default:
			w.statement(b, decl, parent, branch, true)
		}
		if isDefault && idx >= 0 {
			b.setDefaultExport(idx)
		}
		return
	}
	for _, child := range namedChildren(ts) {
		switch child.Type() {
		case "export_clause":
			// export {a, b}: the named local definitions become exported
			// during symbol registration via their declaration nodes; the
			// clause itself adds nothing.
		default:
			w.statement(b, child, parent, branch, true)
		}
	}
}

// patternNames extracts written names from a binding pattern or assignment
// target. Member and subscript targets resolve to their base object.
func (w *jsWalker) patternNames(b *fileBuilder, ts *sitter.Node) []string {
	switch ts.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return []string{b.text(ts)}
	case "member_expression", "subscript_expression":
		if root := expressionRootIdentifier(b, ts); root != "" {
			return []string{root}
		}
		return nil
	case "object_pattern", "array_pattern":
		var names []string
		for _, child := range namedChildren(ts) {
			names = append(names, w.patternNames(b, child)...)
		}
		return names
	case "pair_pattern":
		if val := ts.ChildByFieldName("value"); val != nil {
			return w.patternNames(b, val)
		}
	case "rest_pattern", "assignment_pattern":
		if c := ts.NamedChild(0); c != nil {
			return w.patternNames(b, c)
		}
	}
	return nil
}

// expr walks an expression, attributing reads to consumer and creating
// call and literal nodes.
func (w *jsWalker) expr(b *fileBuilder, ts *sitter.Node, consumer int, valuePos bool, shadows map[string]bool) {
	switch ts.Type() {
	case "call_expression", "new_expression":
		w.call(b, ts, consumer, shadows)

	case "identifier":
		b.addRead(consumer, b.text(ts), shadows)

	case "member_expression", "subscript_expression":
		if root := expressionRootIdentifier(b, ts); root != "" {
			b.addRead(consumer, root, shadows)
		}
		for inner := ts; inner != nil; {
			obj := inner.ChildByFieldName("object")
			if obj == nil {
				break
			}
			if obj.Type() == "call_expression" {
				w.call(b, obj, consumer, shadows)
				break
			}
			if obj.Type() != "member_expression" && obj.Type() != "subscript_expression" {
				break
			}
			inner = obj
		}
		if ts.Type() == "subscript_expression" {
			if index := ts.ChildByFieldName("index"); index != nil {
				w.expr(b, index, consumer, false, shadows)
			}
		}

	case "string", "template_string", "number", "true", "false", "null", "undefined", "regex":
		if valuePos {
			litIdx := b.add(KindLiteral, ts, consumer)
			b.setLiteralValue(litIdx, b.text(ts))
		}
		if ts.Type() == "template_string" {
			for _, child := range namedChildren(ts) {
				if child.Type() == "template_substitution" {
					for _, sub := range namedChildren(child) {
						w.expr(b, sub, consumer, false, shadows)
					}
				}
			}
		}

	case "arrow_function", "function_expression", "function":
		inner := cloneShadows(shadows)
		if params := ts.ChildByFieldName("parameters"); params != nil {
			for _, param := range namedChildren(params) {
				for _, name := range w.patternNames(b, param) {
					inner[name] = true
				}
			}
		}
		if p := ts.ChildByFieldName("parameter"); p != nil {
			for _, name := range w.patternNames(b, p) {
				inner[name] = true
			}
		}
		if body := ts.ChildByFieldName("body"); body != nil {
			if body.Type() == "statement_block" {
				// Inline callbacks keep their call sites attached to the
				// consuming expression.
				for _, child := range namedChildren(body) {
					w.expr(b, child, consumer, false, inner)
				}
			} else {
				w.expr(b, body, consumer, false, inner)
			}
		}

	case "pair":
		if val := ts.ChildByFieldName("value"); val != nil {
			w.expr(b, val, consumer, valuePos, shadows)
		}

	case "comment":
		// Nothing.

	default:
		for _, child := range namedChildren(ts) {
			w.expr(b, child, consumer, false, shadows)
		}
	}
}

// call normalizes a call or new expression and returns the node index, or
// -1 for require() calls which the declarator path owns.
func (w *jsWalker) call(b *fileBuilder, ts *sitter.Node, parent int, shadows map[string]bool) int {
	fn := ts.ChildByFieldName("function")
	if fn == nil {
		fn = ts.ChildByFieldName("constructor")
	}

	// Bare require('m') outside a declarator still records the import.
	if spec, ok := requireSpecifier(b, ts); ok {
		idx := b.add(KindImportStmt, ts, parent)
		b.setImport(idx, &ImportInfo{Specifier: spec})
		return -1
	}

	callee := jsCalleePath(b, fn)
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
		case "member_expression":
			if root := expressionRootIdentifier(b, fn); root != "" {
				b.addRead(callIdx, root, shadows)
			}
			for inner := fn; inner != nil; {
				obj := inner.ChildByFieldName("object")
				if obj == nil {
					break
				}
				if obj.Type() == "call_expression" {
					w.call(b, obj, callIdx, shadows)
					break
				}
				if obj.Type() != "member_expression" && obj.Type() != "subscript_expression" {
					break
				}
				inner = obj
			}
		case "call_expression":
			w.call(b, fn, callIdx, shadows)
		case "subscript_expression":
			if root := expressionRootIdentifier(b, fn); root != "" {
				b.addRead(callIdx, root, shadows)
			}
		}
	}

	if args := ts.ChildByFieldName("arguments"); args != nil {
		for _, arg := range namedChildren(args) {
			w.expr(b, arg, callIdx, true, shadows)
		}
	}
	return callIdx
}

// jsCalleePath flattens a callee expression into a dotted path.
func jsCalleePath(b *fileBuilder, fn *sitter.Node) string {
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return b.text(fn)
	case "member_expression":
		obj := fn.ChildByFieldName("object")
		prop := fn.ChildByFieldName("property")
		if prop == nil {
			return strings.TrimSpace(b.text(fn))
		}
		prefix := jsCalleePath(b, obj)
		if prefix == "" {
			prefix = strings.TrimSpace(b.text(obj))
		}
		return prefix + "." + b.text(prop)
	default:
		return strings.TrimSpace(b.text(fn))
	}
}

// requireSpecifier reports whether a node is a CommonJS require call with a
// literal specifier, returning the specifier.
func requireSpecifier(b *fileBuilder, ts *sitter.Node) (string, bool) {
	if ts == nil || ts.Type() != "call_expression" {
		return "", false
	}
	fn := ts.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" || b.text(fn) != "require" {
		return "", false
	}
	args := ts.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() != 1 {
		return "", false
	}
	arg := args.NamedChild(0)
	if arg.Type() != "string" {
		return "", false
	}
	return stringLiteralValue(b, arg), true
}

// stringLiteralValue strips the quotes off a string literal node.
func stringLiteralValue(b *fileBuilder, ts *sitter.Node) string {
	return strings.Trim(b.text(ts), "\"'`")
}
