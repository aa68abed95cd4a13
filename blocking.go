package asmref

import "context"

// BlockingResolver adapts a ReferenceResolver for integration points that
// cannot carry a context. Calls wait without a deadline; prefer the
// ReferenceResolver methods everywhere else.
type BlockingResolver struct {
	r *ReferenceResolver
}

// Blocking wraps r.
func Blocking(r *ReferenceResolver) BlockingResolver {
	return BlockingResolver{r: r}
}

// Resolve is ReferenceResolver.Resolve without a context.
func (b BlockingResolver) Resolve(ref Reference) *Module {
	m, _ := b.r.Resolve(context.Background(), ref)
	return m
}

// ResolveModule is ReferenceResolver.ResolveModule without a context.
func (b BlockingResolver) ResolveModule(owner *Module, moduleName string) *Module {
	m, _ := b.r.ResolveModule(context.Background(), owner, moduleName)
	return m
}
