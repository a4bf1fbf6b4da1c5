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
	"errors"
	"testing"
)

func mustParseJS(t *testing.T, source string) *SourceFile {
	t.Helper()
	parser := NewJavaScriptParser()
	result, err := parser.Parse(context.Background(), []byte(source), "test.js")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	return result
}

func TestJavaScriptParser_Parse_FunctionDeclaration(t *testing.T) {
	source := `function getInput(prompt) {
  return prompt;
}
`
	result := mustParseJS(t, source)

	fn := findByKindName(result, KindFunctionDef, "getInput")
	if fn == nil {
		t.Fatal("expected function 'getInput'")
	}
	if !fn.Exported {
		t.Error("expected non-underscore function to be exported")
	}
	param := findByKindName(result, KindParam, "prompt")
	if param == nil {
		t.Fatal("expected parameter 'prompt'")
	}
	if param.Parent != fn.Index {
		t.Errorf("expected parameter under the function, got parent %d", param.Parent)
	}
}

func TestJavaScriptParser_Parse_ArrowFunctionConst(t *testing.T) {
	source := `const handler = (req) => {
  return req.body;
};
`
	result := mustParseJS(t, source)

	fn := findByKindName(result, KindFunctionDef, "handler")
	if fn == nil {
		t.Fatal("expected arrow function bound to 'handler' to normalize as a definition")
	}
	param := findByKindName(result, KindParam, "req")
	if param == nil {
		t.Fatal("expected parameter 'req'")
	}
	if param.Parent != fn.Index {
		t.Errorf("expected parameter under the function, got parent %d", param.Parent)
	}
}

func TestJavaScriptParser_Parse_ExpressionBodiedArrow(t *testing.T) {
	result := mustParseJS(t, "const double = (x) => scale(x);\n")

	fn := findByKindName(result, KindFunctionDef, "double")
	if fn == nil {
		t.Fatal("expected function 'double'")
	}
	var ret *NormalizedNode
	for i := range result.Nodes {
		if result.Nodes[i].Kind == KindReturnStmt {
			ret = &result.Nodes[i]
			break
		}
	}
	if ret == nil {
		t.Fatal("expected the expression body to normalize as a return")
	}
	if result.FunctionOf(ret.Index) != fn.Index {
		t.Errorf("expected return inside function %d, got %d", fn.Index, result.FunctionOf(ret.Index))
	}
	if findCall(result, "scale") == nil {
		t.Error("expected call 'scale' in the arrow body")
	}
}

func TestJavaScriptParser_Parse_ClassDeclaration(t *testing.T) {
	source := `class Service {
  handle(req) {
    return this.process(req);
  }
}
`
	result := mustParseJS(t, source)

	cls := findByKindName(result, KindClassDef, "Service")
	if cls == nil {
		t.Fatal("expected class 'Service'")
	}
	method := findByKindName(result, KindFunctionDef, "handle")
	if method == nil {
		t.Fatal("expected method 'handle'")
	}
	if method.Parent != cls.Index {
		t.Errorf("expected method under the class, got parent %d", method.Parent)
	}
}

func TestJavaScriptParser_Parse_ImportNamed(t *testing.T) {
	result := mustParseJS(t, `import {query, exec as run} from './db';`+"\n")

	imp := findImport(result, "./db")
	if imp == nil {
		t.Fatal("expected import of './db'")
	}
	if len(imp.Import.Names) != 2 {
		t.Fatalf("expected 2 imported names, got %d", len(imp.Import.Names))
	}
	if imp.Import.Names[0].Name != "query" || imp.Import.Names[0].Alias != "query" {
		t.Errorf("unexpected first import: %+v", imp.Import.Names[0])
	}
	if imp.Import.Names[1].Name != "exec" || imp.Import.Names[1].Alias != "run" {
		t.Errorf("unexpected aliased import: %+v", imp.Import.Names[1])
	}
}

func TestJavaScriptParser_Parse_ImportDefault(t *testing.T) {
	result := mustParseJS(t, `import db from './db';`+"\n")

	imp := findImport(result, "./db")
	if imp == nil {
		t.Fatal("expected import of './db'")
	}
	if len(imp.Import.Names) != 1 {
		t.Fatalf("expected 1 imported name, got %d", len(imp.Import.Names))
	}
	if imp.Import.Names[0].Name != "default" || imp.Import.Names[0].Alias != "db" {
		t.Errorf("expected default bound as 'db', got %+v", imp.Import.Names[0])
	}
}

func TestJavaScriptParser_Parse_ImportNamespace(t *testing.T) {
	result := mustParseJS(t, `import * as helpers from './helpers';`+"\n")

	imp := findImport(result, "./helpers")
	if imp == nil {
		t.Fatal("expected import of './helpers'")
	}
	if imp.Name != "helpers" {
		t.Errorf("expected module object bound as 'helpers', got %q", imp.Name)
	}
}

func TestJavaScriptParser_Parse_RequireConst(t *testing.T) {
	result := mustParseJS(t, `const db = require('./db');`+"\n")

	imp := findImport(result, "./db")
	if imp == nil {
		t.Fatal("expected require of './db' to normalize as an import")
	}
	if imp.Name != "db" {
		t.Errorf("expected module object bound as 'db', got %q", imp.Name)
	}
}

func TestJavaScriptParser_Parse_RequireDestructured(t *testing.T) {
	result := mustParseJS(t, `const {query, exec: run} = require('./db');`+"\n")

	imp := findImport(result, "./db")
	if imp == nil {
		t.Fatal("expected require of './db' to normalize as an import")
	}
	if len(imp.Import.Names) != 2 {
		t.Fatalf("expected 2 bound members, got %d", len(imp.Import.Names))
	}
	if imp.Import.Names[0].Name != "query" || imp.Import.Names[0].Alias != "query" {
		t.Errorf("unexpected first binding: %+v", imp.Import.Names[0])
	}
	if imp.Import.Names[1].Name != "exec" || imp.Import.Names[1].Alias != "run" {
		t.Errorf("unexpected renamed binding: %+v", imp.Import.Names[1])
	}
}

func TestJavaScriptParser_Parse_ExportedFunction(t *testing.T) {
	result := mustParseJS(t, "export function run() {}\n")

	fn := findByKindName(result, KindFunctionDef, "run")
	if fn == nil {
		t.Fatal("expected function 'run'")
	}
	if !fn.Exported {
		t.Error("expected exported function to be marked exported")
	}
}

func TestJavaScriptParser_Parse_ExportedUnderscoreFunction(t *testing.T) {
	result := mustParseJS(t, "export function _internal() {}\n")

	fn := findByKindName(result, KindFunctionDef, "_internal")
	if fn == nil {
		t.Fatal("expected function '_internal'")
	}
	// An explicit export statement overrides the underscore convention.
	if !fn.Exported {
		t.Error("expected explicitly exported function to be marked exported")
	}
}

func TestJavaScriptParser_Parse_ReExport(t *testing.T) {
	result := mustParseJS(t, `export {run as go} from './m';`+"\n")

	imp := findImport(result, "./m")
	if imp == nil {
		t.Fatal("expected re-export of './m' to normalize as an import")
	}
	if !imp.Import.ReExport {
		t.Error("expected re-export flag")
	}
	if imp.Import.Wildcard {
		t.Error("expected named re-export to not be a wildcard")
	}
	if len(imp.Import.Names) != 1 || imp.Import.Names[0].Name != "run" || imp.Import.Names[0].Alias != "go" {
		t.Errorf("unexpected re-exported names: %+v", imp.Import.Names)
	}
}

func TestJavaScriptParser_Parse_ExportStarFrom(t *testing.T) {
	result := mustParseJS(t, `export * from './m';`+"\n")

	imp := findImport(result, "./m")
	if imp == nil {
		t.Fatal("expected wildcard re-export of './m'")
	}
	if !imp.Import.ReExport || !imp.Import.Wildcard {
		t.Errorf("expected wildcard re-export, got re-export=%v wildcard=%v",
			imp.Import.ReExport, imp.Import.Wildcard)
	}
}

func TestJavaScriptParser_Parse_TemplateString(t *testing.T) {
	result := mustParseJS(t, "run(`select ${table}`);\n")

	call := findCall(result, "run")
	if call == nil {
		t.Fatal("expected call 'run'")
	}
	if !hasRead(call, "table") {
		t.Errorf("expected template substitution to read 'table', got %v", call.Reads)
	}
}

func TestJavaScriptParser_Parse_MethodCallReadsReceiver(t *testing.T) {
	result := mustParseJS(t, "db.query(sql);\n")

	call := findCall(result, "db.query")
	if call == nil {
		t.Fatal("expected call 'db.query'")
	}
	if !hasRead(call, "db") {
		t.Errorf("expected method call to read its receiver, got %v", call.Reads)
	}
	if !hasRead(call, "sql") {
		t.Errorf("expected call to read its argument, got %v", call.Reads)
	}
}

func TestJavaScriptParser_Parse_NestedCall(t *testing.T) {
	result := mustParseJS(t, "sink(source());\n")

	outer := findCall(result, "sink")
	if outer == nil {
		t.Fatal("expected call 'sink'")
	}
	inner := findCall(result, "source")
	if inner == nil {
		t.Fatal("expected nested call 'source'")
	}
	if inner.Parent != outer.Index {
		t.Errorf("expected nested call parented to the outer call, got parent %d", inner.Parent)
	}
}

func TestJavaScriptParser_Parse_IfElse(t *testing.T) {
	source := `if (ok) {
  left();
} else {
  right();
}
`
	result := mustParseJS(t, source)

	var cond *NormalizedNode
	for i := range result.Nodes {
		if result.Nodes[i].Kind == KindIfStmt {
			cond = &result.Nodes[i]
			break
		}
	}
	if cond == nil {
		t.Fatal("expected conditional node")
	}
	if !hasRead(cond, "ok") {
		t.Errorf("expected condition to read 'ok', got %v", cond.Reads)
	}

	left := findCall(result, "left")
	right := findCall(result, "right")
	if left == nil || right == nil {
		t.Fatal("expected calls in both branches")
	}
	if left.Parent != cond.Index || left.Branch != BranchThen {
		t.Errorf("left(): expected then-branch, got parent %d branch %q", left.Parent, left.Branch)
	}
	if right.Parent != cond.Index || right.Branch != BranchElse {
		t.Errorf("right(): expected else-branch, got parent %d branch %q", right.Parent, right.Branch)
	}
}

func TestJavaScriptParser_Parse_ForOfLoop(t *testing.T) {
	source := `for (const item of items) {
  handle(item);
}
`
	result := mustParseJS(t, source)

	var loop *NormalizedNode
	for i := range result.Nodes {
		if result.Nodes[i].Kind == KindLoopStmt {
			loop = &result.Nodes[i]
			break
		}
	}
	if loop == nil {
		t.Fatal("expected loop node")
	}
	if !hasWrite(loop, "item") {
		t.Errorf("expected loop to write its variable, got %v", loop.Writes)
	}
	if !hasRead(loop, "items") {
		t.Errorf("expected loop to read its iterable, got %v", loop.Reads)
	}
}

func TestJavaScriptParser_Parse_SwitchStatement(t *testing.T) {
	source := `switch (mode) {
case 1:
  first();
  break;
default:
  fallback();
}
`
	result := mustParseJS(t, source)

	var cond *NormalizedNode
	for i := range result.Nodes {
		if result.Nodes[i].Kind == KindIfStmt {
			cond = &result.Nodes[i]
			break
		}
	}
	if cond == nil {
		t.Fatal("expected switch to normalize as a conditional")
	}
	if !hasRead(cond, "mode") {
		t.Errorf("expected switch to read its value, got %v", cond.Reads)
	}
	first := findCall(result, "first")
	if first == nil || first.Branch != BranchThen {
		t.Error("expected case body call in the then role")
	}
	fallback := findCall(result, "fallback")
	if fallback == nil || fallback.Branch != BranchElse {
		t.Error("expected default body call in the else role")
	}
}

func TestJavaScriptParser_Parse_SyntaxError(t *testing.T) {
	parser := NewJavaScriptParser()
	result, err := parser.Parse(context.Background(), []byte("function broken( {\n"), "broken.js")

	if err == nil {
		t.Fatal("expected error for broken source")
	}
	if result != nil {
		t.Error("expected nil result on syntax error")
	}
	if !errors.Is(err, ErrSyntax) {
		t.Errorf("expected ErrSyntax, got %v", err)
	}
}

func TestJavaScriptParser_Language(t *testing.T) {
	parser := NewJavaScriptParser()
	if parser.Language() != "javascript" {
		t.Errorf("expected language 'javascript', got %q", parser.Language())
	}
}

func TestJavaScriptParser_Extensions(t *testing.T) {
	parser := NewJavaScriptParser()
	extensions := parser.Extensions()

	expected := map[string]bool{".js": true, ".jsx": true, ".mjs": true, ".cjs": true}
	for _, ext := range extensions {
		if !expected[ext] {
			t.Errorf("unexpected extension: %q", ext)
		}
		delete(expected, ext)
	}
	if len(expected) > 0 {
		t.Errorf("missing extensions: %v", expected)
	}
}
