// Package access evaluates entity access predicates against caller context.
// Filtering is a visibility policy: hidden entities are omitted from listings
// and behave as absent at dispatch time.
package access

import (
	"github.com/dapp-works/urpc/core/schema"
)

// IsVisible reports whether every predicate of e passes for caller.
// Entities without predicates are always visible.
func IsVisible(e schema.Entity, caller schema.Caller) bool {
	if e == nil {
		return false
	}
	return Check(e.Predicates(), caller)
}

// Check reports whether all predicates pass, in order.
func Check(predicates []schema.Predicate, caller schema.Caller) bool {
	for _, p := range predicates {
		if p != nil && !p(caller) {
			return false
		}
	}
	return true
}

// FilterSchema returns the entries of s visible to caller.
// Hidden entries are dropped, not masked.
func FilterSchema(s schema.Schema, caller schema.Caller) schema.Schema {
	out := make(schema.Schema, len(s))
	for name, item := range s {
		if item == nil {
			continue
		}
		if IsVisible(item, caller) {
			out[name] = item
		}
	}
	return out
}

// All combines predicates with AND.
func All(predicates ...schema.Predicate) schema.Predicate {
	return func(c schema.Caller) bool {
		return Check(predicates, c)
	}
}

// Any combines predicates with OR.
func Any(predicates ...schema.Predicate) schema.Predicate {
	return func(c schema.Caller) bool {
		for _, p := range predicates {
			if p != nil && p(c) {
				return true
			}
		}
		return false
	}
}

// Flag passes when the boolean at key is true.
func Flag(key string) schema.Predicate {
	return func(c schema.Caller) bool {
		return c.Bool(key)
	}
}

// Teams passes for super admins and for members of any allowed team.
// It reads user.isSuperAdmin and user.teams from the caller.
func Teams(allowed ...string) schema.Predicate {
	set := make(map[string]struct{}, len(allowed))
	for _, t := range allowed {
		set[t] = struct{}{}
	}
	return func(c schema.Caller) bool {
		if c.Bool("user.isSuperAdmin") {
			return true
		}
		for _, team := range c.Strings("user.teams") {
			if _, ok := set[team]; ok {
				return true
			}
		}
		return false
	}
}
