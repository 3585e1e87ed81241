// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package expr

import "sort"

// FreeVars returns the names n references without binding them, sorted.
// Builtin names are never free.
func FreeVars(n Node) []string {
	free := map[string]bool{}
	collectFree(n, map[string]int{}, free)
	names := make([]string, 0, len(free))
	for name := range free {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func bind(bound map[string]int, names []string) func() {
	for _, name := range names {
		bound[name]++
	}
	return func() {
		for _, name := range names {
			bound[name]--
		}
	}
}

func collectFree(n Node, bound map[string]int, free map[string]bool) {
	use := func(name string) {
		if bound[name] == 0 && !IsBuiltinName(name) {
			free[name] = true
		}
	}
	switch n := n.(type) {
	case *Var:
		use(n.Name)
	case *Variant:
		if n.Payload != nil {
			collectFree(n.Payload, bound, free)
		}
	case *List:
		for _, e := range n.Elems {
			collectFree(e, bound, free)
		}
		if n.Spread != nil {
			use(n.Spread.Name)
		}
	case *Record:
		for _, f := range n.Fields {
			collectFree(f.Value, bound, free)
		}
		if n.Spread != nil {
			use(n.Spread.Name)
		}
	case *Binop:
		collectFree(n.Left, bound, free)
		if n.Op != ":" {
			// The right of : is a type annotation and is never evaluated.
			collectFree(n.Right, bound, free)
		}
	case *Apply:
		collectFree(n.Func, bound, free)
		collectFree(n.Arg, bound, free)
	case *Function:
		done := bind(bound, Names(n.Param))
		collectFree(n.Body, bound, free)
		done()
	case *Match:
		collectFree(n.Scrutinee, bound, free)
		for _, c := range n.Cases {
			done := bind(bound, Names(c.Pattern))
			if c.Guard != nil {
				collectFree(c.Guard, bound, free)
			}
			collectFree(c.Body, bound, free)
			done()
		}
	case *Where:
		var names []string
		for _, b := range n.Bindings {
			names = append(names, Names(b.Pattern)...)
		}
		done := bind(bound, names)
		collectFree(n.Body, bound, free)
		for _, b := range n.Bindings {
			collectFree(b.Value, bound, free)
		}
		done()
	case *Assign:
		done := bind(bound, Names(n.Pattern))
		collectFree(n.Value, bound, free)
		done()
	case *Access:
		collectFree(n.Target, bound, free)
		// A bare name key that is not in scope is a record field name.
		if _, ok := n.Key.(*Var); !ok {
			collectFree(n.Key, bound, free)
		}
	case *Assert:
		collectFree(n.Value, bound, free)
		collectFree(n.Cond, bound, free)
	}
}
