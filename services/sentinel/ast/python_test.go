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
	"errors"
	"reflect"
	"sync"
	"testing"
)

// findByKindName returns the first node with the given kind and name, or
// nil.
func findByKindName(f *SourceFile, kind NodeKind, name string) *NormalizedNode {
	for i := range f.Nodes {
		if f.Nodes[i].Kind == kind && f.Nodes[i].Name == name {
			return &f.Nodes[i]
		}
	}
	return nil
}

// findCall returns the first call node with the given callee, or nil.
func findCall(f *SourceFile, callee string) *NormalizedNode {
	for i := range f.Nodes {
		if f.Nodes[i].Kind == KindCallExpr && f.Nodes[i].Callee == callee {
			return &f.Nodes[i]
		}
	}
	return nil
}

// findImport returns the first import node with the given specifier, or
// nil.
func findImport(f *SourceFile, specifier string) *NormalizedNode {
	for _, idx := range f.ImportNodes {
		if f.Nodes[idx].Import != nil && f.Nodes[idx].Import.Specifier == specifier {
			return &f.Nodes[idx]
		}
	}
	return nil
}

// hasRead reports whether the node reads the given name.
func hasRead(n *NormalizedNode, name string) bool {
	for _, r := range n.Reads {
		if r == name {
			return true
		}
	}
	return false
}

// hasWrite reports whether the node writes the given name.
func hasWrite(n *NormalizedNode, name string) bool {
	for _, w := range n.Writes {
		if w == name {
			return true
		}
	}
	return false
}

func mustParsePython(t *testing.T, source string) *SourceFile {
	t.Helper()
	parser := NewPythonParser()
	result, err := parser.Parse(context.Background(), []byte(source), "test.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	return result
}

func TestPythonParser_Parse_EmptyFile(t *testing.T) {
	parser := NewPythonParser()
	result, err := parser.Parse(context.Background(), []byte(""), "empty.py")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Language != "python" {
		t.Errorf("expected language 'python', got %q", result.Language)
	}
	if result.Path != "empty.py" {
		t.Errorf("expected path 'empty.py', got %q", result.Path)
	}
	if len(result.Nodes) != 1 {
		t.Errorf("expected only the module root node, got %d nodes", len(result.Nodes))
	}
	if result.Nodes[0].Kind != KindModule {
		t.Errorf("expected module root, got %s", result.Nodes[0].Kind)
	}
}

func TestPythonParser_Parse_Function(t *testing.T) {
	source := `def get_input(prompt):
    return prompt
`
	result := mustParsePython(t, source)

	fn := findByKindName(result, KindFunctionDef, "get_input")
	if fn == nil {
		t.Fatal("expected function 'get_input'")
	}
	if !fn.Exported {
		t.Error("expected top-level function to be exported")
	}
	if !fn.Stmt {
		t.Error("expected function definition to be a statement")
	}
	if !hasWrite(fn, "get_input") {
		t.Error("expected function definition to write its own name")
	}

	param := findByKindName(result, KindParam, "prompt")
	if param == nil {
		t.Fatal("expected parameter 'prompt'")
	}
	if param.Parent != fn.Index {
		t.Errorf("expected parameter parent %d, got %d", fn.Index, param.Parent)
	}
	if !hasWrite(param, "prompt") {
		t.Error("expected parameter to write its name")
	}
}

func TestPythonParser_Parse_PrivateFunction(t *testing.T) {
	result := mustParsePython(t, "def _helper():\n    pass\n")

	fn := findByKindName(result, KindFunctionDef, "_helper")
	if fn == nil {
		t.Fatal("expected function '_helper'")
	}
	if fn.Exported {
		t.Error("expected underscore-prefixed function to not be exported")
	}
}

func TestPythonParser_Parse_ClassWithMethods(t *testing.T) {
	source := `class Repo:
    def fetch(self, key):
        return self.data[key]

    def _evict(self):
        pass
`
	result := mustParsePython(t, source)

	cls := findByKindName(result, KindClassDef, "Repo")
	if cls == nil {
		t.Fatal("expected class 'Repo'")
	}
	fetch := findByKindName(result, KindFunctionDef, "fetch")
	if fetch == nil {
		t.Fatal("expected method 'fetch'")
	}
	if fetch.Parent != cls.Index {
		t.Errorf("expected method parent %d, got %d", cls.Index, fetch.Parent)
	}
	evict := findByKindName(result, KindFunctionDef, "_evict")
	if evict == nil {
		t.Fatal("expected method '_evict'")
	}
	if evict.Exported {
		t.Error("expected underscore-prefixed method to not be exported")
	}
}

func TestPythonParser_Parse_DecoratedFunction(t *testing.T) {
	source := `@app.route("/users")
def list_users():
    pass
`
	result := mustParsePython(t, source)

	fn := findByKindName(result, KindFunctionDef, "list_users")
	if fn == nil {
		t.Fatal("expected decorated function 'list_users'")
	}
	// The decorator call attaches to the definition node.
	dec := findCall(result, "app.route")
	if dec == nil {
		t.Fatal("expected decorator call 'app.route'")
	}
	if dec.Parent != fn.Index {
		t.Errorf("expected decorator call parent %d, got %d", fn.Index, dec.Parent)
	}
}

func TestPythonParser_Parse_Assignment(t *testing.T) {
	result := mustParsePython(t, "x = y\n")

	var asg *NormalizedNode
	for i := range result.Nodes {
		if result.Nodes[i].Kind == KindAssignment {
			asg = &result.Nodes[i]
			break
		}
	}
	if asg == nil {
		t.Fatal("expected assignment node")
	}
	if !hasWrite(asg, "x") {
		t.Errorf("expected write of 'x', got %v", asg.Writes)
	}
	if !hasRead(asg, "y") {
		t.Errorf("expected read of 'y', got %v", asg.Reads)
	}
}

func TestPythonParser_Parse_AugmentedAssignment(t *testing.T) {
	result := mustParsePython(t, "total += amount\n")

	var asg *NormalizedNode
	for i := range result.Nodes {
		if result.Nodes[i].Kind == KindAssignment {
			asg = &result.Nodes[i]
			break
		}
	}
	if asg == nil {
		t.Fatal("expected assignment node")
	}
	if !hasWrite(asg, "total") {
		t.Errorf("expected write of 'total', got %v", asg.Writes)
	}
	if !hasRead(asg, "total") {
		t.Errorf("expected compound assignment to read the old value, got %v", asg.Reads)
	}
	if !hasRead(asg, "amount") {
		t.Errorf("expected read of 'amount', got %v", asg.Reads)
	}
}

func TestPythonParser_Parse_CallStatement(t *testing.T) {
	result := mustParsePython(t, "execute(query)\n")

	call := findCall(result, "execute")
	if call == nil {
		t.Fatal("expected call 'execute'")
	}
	if !call.Stmt {
		t.Error("expected top-level call to be a statement")
	}
	if !hasRead(call, "query") {
		t.Errorf("expected call to read its argument, got %v", call.Reads)
	}
}

func TestPythonParser_Parse_NestedCall(t *testing.T) {
	result := mustParsePython(t, "execute(get_input())\n")

	outer := findCall(result, "execute")
	if outer == nil {
		t.Fatal("expected call 'execute'")
	}
	inner := findCall(result, "get_input")
	if inner == nil {
		t.Fatal("expected nested call 'get_input'")
	}
	if inner.Parent != outer.Index {
		t.Errorf("expected nested call to be parented to the outer call, got parent %d", inner.Parent)
	}
}

func TestPythonParser_Parse_MethodCallReadsReceiver(t *testing.T) {
	result := mustParsePython(t, "db.execute(q)\n")

	call := findCall(result, "db.execute")
	if call == nil {
		t.Fatal("expected call 'db.execute'")
	}
	if !hasRead(call, "db") {
		t.Errorf("expected method call to read its receiver, got %v", call.Reads)
	}
	if !hasRead(call, "q") {
		t.Errorf("expected call to read its argument, got %v", call.Reads)
	}
}

func TestPythonParser_Parse_ChainedCall(t *testing.T) {
	result := mustParsePython(t, "get_db().query(x)\n")

	inner := findCall(result, "get_db")
	if inner == nil {
		t.Fatal("expected inner call 'get_db'")
	}
	var outer *NormalizedNode
	for i := range result.Nodes {
		n := &result.Nodes[i]
		if n.Kind == KindCallExpr && n.Index != inner.Index {
			outer = n
			break
		}
	}
	if outer == nil {
		t.Fatal("expected outer call node")
	}
	if inner.Parent != outer.Index {
		t.Errorf("expected inner call parented to the outer call, got parent %d", inner.Parent)
	}
	if !hasRead(outer, "x") {
		t.Errorf("expected outer call to read 'x', got %v", outer.Reads)
	}
}

func TestPythonParser_Parse_Import(t *testing.T) {
	result := mustParsePython(t, "import os\n")

	imp := findImport(result, "os")
	if imp == nil {
		t.Fatal("expected import of 'os'")
	}
	if imp.Name != "os" {
		t.Errorf("expected binding name 'os', got %q", imp.Name)
	}
}

func TestPythonParser_Parse_ImportDotted(t *testing.T) {
	result := mustParsePython(t, "import a.b\n")

	imp := findImport(result, "a.b")
	if imp == nil {
		t.Fatal("expected import of 'a.b'")
	}
	// import a.b binds the root package name in the importing scope.
	if imp.Name != "a" {
		t.Errorf("expected binding name 'a', got %q", imp.Name)
	}
}

func TestPythonParser_Parse_ImportAlias(t *testing.T) {
	result := mustParsePython(t, "import numpy as np\n")

	imp := findImport(result, "numpy")
	if imp == nil {
		t.Fatal("expected import of 'numpy'")
	}
	if imp.Name != "np" {
		t.Errorf("expected binding name 'np', got %q", imp.Name)
	}
}

func TestPythonParser_Parse_ImportFrom(t *testing.T) {
	result := mustParsePython(t, "from a import get_input\n")

	imp := findImport(result, "a")
	if imp == nil {
		t.Fatal("expected import from 'a'")
	}
	if len(imp.Import.Names) != 1 {
		t.Fatalf("expected 1 imported name, got %d", len(imp.Import.Names))
	}
	if imp.Import.Names[0].Name != "get_input" || imp.Import.Names[0].Alias != "get_input" {
		t.Errorf("unexpected imported name: %+v", imp.Import.Names[0])
	}
}

func TestPythonParser_Parse_ImportFromAlias(t *testing.T) {
	result := mustParsePython(t, "from db import execute as run\n")

	imp := findImport(result, "db")
	if imp == nil {
		t.Fatal("expected import from 'db'")
	}
	if len(imp.Import.Names) != 1 {
		t.Fatalf("expected 1 imported name, got %d", len(imp.Import.Names))
	}
	got := imp.Import.Names[0]
	if got.Name != "execute" || got.Alias != "run" {
		t.Errorf("expected execute as run, got %+v", got)
	}
}

func TestPythonParser_Parse_ImportWildcard(t *testing.T) {
	result := mustParsePython(t, "from helpers import *\n")

	imp := findImport(result, "helpers")
	if imp == nil {
		t.Fatal("expected import from 'helpers'")
	}
	if !imp.Import.Wildcard {
		t.Error("expected wildcard import")
	}
}

func TestPythonParser_Parse_RelativeImport(t *testing.T) {
	result := mustParsePython(t, "from . import sibling\n")

	imp := findImport(result, ".")
	if imp == nil {
		t.Fatal("expected relative import")
	}
	if imp.Import.Level != 1 {
		t.Errorf("expected relative level 1, got %d", imp.Import.Level)
	}
	if len(imp.Import.Names) != 1 || imp.Import.Names[0].Name != "sibling" {
		t.Errorf("expected imported name 'sibling', got %+v", imp.Import.Names)
	}
}

func TestPythonParser_Parse_RelativeImportParent(t *testing.T) {
	result := mustParsePython(t, "from ..utils import helper\n")

	imp := findImport(result, "utils")
	if imp == nil {
		t.Fatal("expected relative import of 'utils'")
	}
	if imp.Import.Level != 2 {
		t.Errorf("expected relative level 2, got %d", imp.Import.Level)
	}
}

func TestPythonParser_Parse_IfElifElse(t *testing.T) {
	source := `if a:
    x = 1
elif b:
    y = 2
else:
    z = 3
`
	result := mustParsePython(t, source)

	var conds []*NormalizedNode
	for i := range result.Nodes {
		if result.Nodes[i].Kind == KindIfStmt {
			conds = append(conds, &result.Nodes[i])
		}
	}
	if len(conds) != 2 {
		t.Fatalf("expected 2 conditional nodes (if + elif), got %d", len(conds))
	}
	ifNode, elifNode := conds[0], conds[1]

	if !hasRead(ifNode, "a") {
		t.Errorf("expected condition to read 'a', got %v", ifNode.Reads)
	}
	if elifNode.Parent != ifNode.Index || elifNode.Branch != BranchElse {
		t.Errorf("expected elif nested in the else role of the if, got parent %d branch %q",
			elifNode.Parent, elifNode.Branch)
	}

	for i := range result.Nodes {
		n := &result.Nodes[i]
		if n.Kind != KindAssignment {
			continue
		}
		switch {
		case hasWrite(n, "x"):
			if n.Parent != ifNode.Index || n.Branch != BranchThen {
				t.Errorf("x = 1: expected then-branch of if, got parent %d branch %q", n.Parent, n.Branch)
			}
		case hasWrite(n, "y"):
			if n.Parent != elifNode.Index || n.Branch != BranchThen {
				t.Errorf("y = 2: expected then-branch of elif, got parent %d branch %q", n.Parent, n.Branch)
			}
		case hasWrite(n, "z"):
			if n.Parent != elifNode.Index || n.Branch != BranchElse {
				t.Errorf("z = 3: expected else-branch of elif, got parent %d branch %q", n.Parent, n.Branch)
			}
		}
	}
}

func TestPythonParser_Parse_ForLoop(t *testing.T) {
	source := `for item in items:
    process(item)
`
	result := mustParsePython(t, source)

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

	call := findCall(result, "process")
	if call == nil {
		t.Fatal("expected call in loop body")
	}
	if call.Parent != loop.Index || call.Branch != BranchBody {
		t.Errorf("expected body call under the loop, got parent %d branch %q", call.Parent, call.Branch)
	}
}

func TestPythonParser_Parse_Return(t *testing.T) {
	source := `def f():
    return result
`
	result := mustParsePython(t, source)

	var ret *NormalizedNode
	for i := range result.Nodes {
		if result.Nodes[i].Kind == KindReturnStmt {
			ret = &result.Nodes[i]
			break
		}
	}
	if ret == nil {
		t.Fatal("expected return node")
	}
	if !hasRead(ret, "result") {
		t.Errorf("expected return to read its value, got %v", ret.Reads)
	}
	fn := findByKindName(result, KindFunctionDef, "f")
	if fn == nil {
		t.Fatal("expected function 'f'")
	}
	if result.FunctionOf(ret.Index) != fn.Index {
		t.Errorf("expected return inside function %d, got %d", fn.Index, result.FunctionOf(ret.Index))
	}
}

func TestPythonParser_Parse_GlobalDeclaration(t *testing.T) {
	source := `def bump():
    global counter
    counter = counter + 1
`
	result := mustParsePython(t, source)

	var decl *NormalizedNode
	for i := range result.Nodes {
		if result.Nodes[i].Kind == KindScopeDecl {
			decl = &result.Nodes[i]
			break
		}
	}
	if decl == nil {
		t.Fatal("expected scope declaration node")
	}
	if len(decl.Names) != 1 || decl.Names[0] != "counter" {
		t.Errorf("expected declared name 'counter', got %v", decl.Names)
	}
}

func TestPythonParser_Parse_FStringInterpolation(t *testing.T) {
	result := mustParsePython(t, `msg = f"hello {name}"` + "\n")

	var asg *NormalizedNode
	for i := range result.Nodes {
		if result.Nodes[i].Kind == KindAssignment {
			asg = &result.Nodes[i]
			break
		}
	}
	if asg == nil {
		t.Fatal("expected assignment node")
	}
	if !hasRead(asg, "name") {
		t.Errorf("expected f-string interpolation to read 'name', got %v", asg.Reads)
	}
}

func TestPythonParser_Parse_LambdaShadowsParams(t *testing.T) {
	result := mustParsePython(t, "f = lambda v: g(v)\n")

	call := findCall(result, "g")
	if call == nil {
		t.Fatal("expected call 'g' inside lambda")
	}
	if hasRead(call, "v") {
		t.Errorf("lambda parameter must not surface as a read, got %v", call.Reads)
	}
}

func TestPythonParser_Parse_ComprehensionShadowsVariable(t *testing.T) {
	result := mustParsePython(t, "result = [f(x) for x in data]\n")

	var asg *NormalizedNode
	for i := range result.Nodes {
		if result.Nodes[i].Kind == KindAssignment {
			asg = &result.Nodes[i]
			break
		}
	}
	if asg == nil {
		t.Fatal("expected assignment node")
	}
	if !hasRead(asg, "data") {
		t.Errorf("expected comprehension to read its iterable, got %v", asg.Reads)
	}
	if hasRead(asg, "x") {
		t.Errorf("comprehension variable must not surface as a read, got %v", asg.Reads)
	}
	call := findCall(result, "f")
	if call == nil {
		t.Fatal("expected call 'f' inside comprehension")
	}
	if hasRead(call, "x") {
		t.Errorf("comprehension variable must not surface on the call, got %v", call.Reads)
	}
}

func TestPythonParser_Parse_WithStatement(t *testing.T) {
	source := `with open(path) as f:
    data = f.read()
`
	result := mustParsePython(t, source)

	call := findCall(result, "open")
	if call == nil {
		t.Fatal("expected call 'open'")
	}
	if !hasRead(call, "path") {
		t.Errorf("expected context manager call to read 'path', got %v", call.Reads)
	}
	found := false
	for i := range result.Nodes {
		if result.Nodes[i].Kind == KindAssignment && hasWrite(&result.Nodes[i], "f") {
			found = true
		}
	}
	if !found {
		t.Error("expected the with-as binding to write 'f'")
	}
}

func TestPythonParser_Parse_SyntaxError(t *testing.T) {
	parser := NewPythonParser()
	result, err := parser.Parse(context.Background(), []byte("def broken(\n"), "broken.py")

	if err == nil {
		t.Fatal("expected error for broken source")
	}
	if result != nil {
		t.Error("expected nil result on syntax error")
	}
	if !errors.Is(err, ErrSyntax) {
		t.Errorf("expected ErrSyntax, got %v", err)
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if perr.Path != "broken.py" {
		t.Errorf("expected path 'broken.py' in error, got %q", perr.Path)
	}
	if perr.Warning() == "" {
		t.Error("expected a non-empty warning rendering")
	}
}

func TestPythonParser_Parse_BinaryContent(t *testing.T) {
	parser := NewPythonParser()
	content := []byte{0x00, 0x01, 0x02, 'h', 'i'}
	_, err := parser.Parse(context.Background(), content, "blob.py")

	if !errors.Is(err, ErrBinaryFile) {
		t.Errorf("expected ErrBinaryFile, got %v", err)
	}
}

func TestPythonParser_Parse_FileTooLarge(t *testing.T) {
	parser := NewPythonParser(WithPythonMaxFileSize(8))
	_, err := parser.Parse(context.Background(), []byte("x = 1\ny = 2\n"), "big.py")

	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestPythonParser_Parse_InvalidUTF8(t *testing.T) {
	parser := NewPythonParser()
	_, err := parser.Parse(context.Background(), []byte{0xff, 0xfe, 'x'}, "bad.py")

	if !errors.Is(err, ErrInvalidContent) {
		t.Errorf("expected ErrInvalidContent, got %v", err)
	}
}

func TestPythonParser_Parse_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	parser := NewPythonParser()
	_, err := parser.Parse(ctx, []byte("x = 1\n"), "test.py")
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestPythonParser_Parse_Hash(t *testing.T) {
	content := []byte("x = 1\n")
	result := mustParsePython(t, string(content))

	sum := sha256.Sum256(content)
	if result.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("expected content hash %s, got %s", hex.EncodeToString(sum[:]), result.Hash)
	}
}

func TestPythonParser_Parse_Deterministic(t *testing.T) {
	source := `from db import execute

def handler(req):
    q = req.args
    execute(q)
`
	first := mustParsePython(t, source)
	second := mustParsePython(t, source)

	if !reflect.DeepEqual(first.Nodes, second.Nodes) {
		t.Error("expected identical node arenas across repeated parses")
	}
	if !reflect.DeepEqual(first.ImportNodes, second.ImportNodes) {
		t.Error("expected identical import indexes across repeated parses")
	}
}

func TestPythonParser_Parse_Concurrent(t *testing.T) {
	parser := NewPythonParser()
	sources := []string{
		`def func1(): pass`,
		`class Class1: pass`,
		`import os`,
		`x = compute()`,
		`from a import b`,
	}

	var wg sync.WaitGroup
	parseErrs := make(chan error, len(sources)*10)

	for i := 0; i < 10; i++ {
		for _, src := range sources {
			wg.Add(1)
			go func(source string) {
				defer wg.Done()
				_, err := parser.Parse(context.Background(), []byte(source), "test.py")
				if err != nil {
					parseErrs <- err
				}
			}(src)
		}
	}

	wg.Wait()
	close(parseErrs)

	for err := range parseErrs {
		t.Errorf("concurrent parse error: %v", err)
	}
}

func TestPythonParser_Language(t *testing.T) {
	parser := NewPythonParser()
	if parser.Language() != "python" {
		t.Errorf("expected language 'python', got %q", parser.Language())
	}
}

func TestPythonParser_Extensions(t *testing.T) {
	parser := NewPythonParser()
	extensions := parser.Extensions()

	expected := map[string]bool{".py": true, ".pyi": true}
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

func TestModulePath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"a.py", "a"},
		{"./a.py", "a"},
		{"src/a/b.py", "src.a.b"},
		{"pkg/__init__.py", "pkg"},
		{"lib/util.js", "lib.util"},
		{"web/app.tsx", "web.app"},
	}
	for _, tc := range cases {
		if got := ModulePath(tc.path); got != tc.want {
			t.Errorf("ModulePath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestSourceFile_FunctionOf(t *testing.T) {
	source := `x = 1

def outer():
    y = 2
`
	result := mustParsePython(t, source)

	fn := findByKindName(result, KindFunctionDef, "outer")
	if fn == nil {
		t.Fatal("expected function 'outer'")
	}
	for i := range result.Nodes {
		n := &result.Nodes[i]
		if n.Kind != KindAssignment {
			continue
		}
		switch {
		case hasWrite(n, "x"):
			if got := result.FunctionOf(n.Index); got != -1 {
				t.Errorf("module-level assignment: expected -1, got %d", got)
			}
		case hasWrite(n, "y"):
			if got := result.FunctionOf(n.Index); got != fn.Index {
				t.Errorf("function-local assignment: expected %d, got %d", fn.Index, got)
			}
		}
	}
}
