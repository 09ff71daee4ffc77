/*
Package introspect resolves declared entities into serializable descriptors.

Functions resolve their input shape: literal fields become defaults, type
fields contribute their default, enumerated options and UI hints.

Variables resolve in a fixed sequence:

 1. read the current value,
 2. run the variable's schema resolver (if any) with value, self and caller,
 3. infer descriptors for undeclared properties of the value (or of the
    first element when the value is a sequence),
 4. drop entries whose access predicates fail for the caller,
 5. phase one: describe every type field,
 6. phase two: describe nested functions and actions, whose input
    resolvers see the phase-one types through schema.Owner.

Nested functions therefore never observe each other, which bounds the
dependency graph by construction. Composite types recurse through their own
schema resolvers; the recursion depth is capped and re-entering a type that
is already being resolved fails with a *SchemaCycleError.

Nothing is cached across requests: descriptors depend on live values and
on the caller.
*/
package introspect
