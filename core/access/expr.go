package access

import (
	"fmt"

	"github.com/dapp-works/urpc/core/schema"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Expr compiles an expression into a predicate.
//
// The caller is available as ctx and its top-level keys are also bound
// directly, so both "ctx.isAdmin" and "isAdmin" work:
//
//	access.Expr(`ctx.user.isSuperAdmin || "bd" in ctx.user.teams`)
//
// Evaluation errors and non-boolean results deny access.
func Expr(src string) (schema.Predicate, error) {
	program, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile predicate %q: %w", src, err)
	}
	return exprPredicate(program), nil
}

// MustExpr is like Expr but panics on compile errors.
func MustExpr(src string) schema.Predicate {
	p, err := Expr(src)
	if err != nil {
		panic(err)
	}
	return p
}

func exprPredicate(program *vm.Program) schema.Predicate {
	return func(c schema.Caller) bool {
		env := make(map[string]any, len(c)+1)
		for k, v := range c {
			env[k] = v
		}
		env["ctx"] = map[string]any(c)

		out, err := expr.Run(program, env)
		if err != nil {
			return false
		}
		b, ok := out.(bool)
		return ok && b
	}
}
