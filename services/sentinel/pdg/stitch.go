// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pdg

import (
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/symbols"
)

// stitchFile connects one file's call sites and imports to the rest of
// the project.
//
// Description:
//
//	A resolved call site grows a CALL edge to the callee's entry node,
//	DATA edges from the call site into each callee parameter (argument
//	passing) and DATA edges from each callee return back to the call site
//	(return value). An unresolved call site grows nothing: it is a dead
//	end, not an error. Resolved import bindings grow IMPORT edges from
//	the importing node to the imported definition. Every stitched edge is
//	tagged cross_file when its endpoints live in different files, and
//	stitching never crosses language families: Python and the
//	JavaScript/TypeScript pair never link to each other.
func (st *buildState) stitchFile(fg *fileGraph) error {
	f := fg.file
	byImportNode := make(map[int][]*symbols.Binding)
	for _, binding := range st.table.Bindings(f.Path) {
		byImportNode[binding.ImportNode] = append(byImportNode[binding.ImportNode], binding)
	}

	for _, i := range fg.mapped {
		id := fg.astToPdg[i]
		node := &st.graph.Nodes[id]

		switch node.Kind {
		case NodeCallSite:
			if node.CalleeSymbol == "" {
				continue
			}
			target, ok := st.graph.EntryFor(node.CalleeSymbol)
			if !ok {
				continue
			}
			if err := st.stitchCall(id, target); err != nil {
				return err
			}

		case NodeImport:
			for _, binding := range byImportNode[i] {
				if binding.Unresolved {
					continue
				}
				target, ok := st.graph.DefinitionFor(binding.Target)
				if !ok {
					continue
				}
				tnode := st.graph.Node(target)
				if !sameLanguageFamily(node.Language, tnode.Language) {
					continue
				}
				err := st.graph.AddEdge(Edge{
					From:      id,
					To:        target,
					Type:      EdgeImport,
					CrossFile: tnode.FilePath != node.FilePath,
				})
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// stitchCall wires one resolved call site to its callee.
func (st *buildState) stitchCall(call, target int) error {
	caller := st.graph.Node(call)
	callee := st.graph.Node(target)
	if !sameLanguageFamily(caller.Language, callee.Language) {
		return nil
	}
	cross := caller.FilePath != callee.FilePath

	if err := st.graph.AddEdge(Edge{From: call, To: target, Type: EdgeCall, CrossFile: cross}); err != nil {
		return err
	}
	// Arguments flow into the callee's parameters and return values flow
	// back to the call site. Per-position matching is out of reach of a
	// name-level graph, so every argument reaches every parameter.
	for _, param := range st.paramsOfEntry[target] {
		if err := st.graph.AddEdge(Edge{From: call, To: param, Type: EdgeData, CrossFile: cross}); err != nil {
			return err
		}
	}
	for _, ret := range st.returnsOfEntry[target] {
		if err := st.graph.AddEdge(Edge{From: ret, To: call, Type: EdgeData, CrossFile: cross}); err != nil {
			return err
		}
	}
	return nil
}

// sameLanguageFamily reports whether two language tags may exchange
// dependence edges. JavaScript and TypeScript form one family; nothing
// else mixes.
func sameLanguageFamily(a, b string) bool {
	return languageFamily(a) == languageFamily(b)
}

func languageFamily(lang string) string {
	switch lang {
	case "javascript", "typescript":
		return "ecmascript"
	default:
		return lang
	}
}
