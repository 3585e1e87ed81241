// Package stdlib holds the scrapscript prelude.
package stdlib

import (
	_ "embed"

	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/parser"
)

//go:embed prelude.scrap
var Prelude string

// Parse parses the prelude. It is a single definition group, so running
// it with eval.Evaluator.Run yields a scope holding every definition.
func Parse() (expr.Node, error) {
	return parser.Parse(Prelude)
}
