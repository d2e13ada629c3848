package agent

import (
	"context"
	"fmt"
	"reflect"
)

// Handler processes one payload delivered to an agent. The returned value
// resolves the sender's Future for direct sends and is discarded for
// published messages.
type Handler func(ctx context.Context, payload any, mctx MessageContext) (any, error)

// TypeMatcher is one member of the set of payload types a table entry
// accepts.
type TypeMatcher struct {
	typ   reflect.Type
	name  string
	iface bool
	match func(any) bool
}

// TypeOf returns the matcher for payloads of type T. When T is an interface
// type the matcher accepts every payload implementing it.
func TypeOf[T any]() TypeMatcher {
	t := reflect.TypeFor[T]()
	return TypeMatcher{
		typ:   t,
		name:  t.String(),
		iface: t.Kind() == reflect.Interface,
		match: func(v any) bool {
			_, ok := v.(T)
			return ok
		},
	}
}

// Name returns the Go type name the matcher accepts. Distinct types may
// share a name; tables tell them apart by type identity.
func (m TypeMatcher) Name() string { return m.name }

type route struct {
	accepts TypeMatcher
	handler Handler
}

// Table is an agent type's handler table: a static mapping from accepted
// payload types to handlers. Build it once, before the agent receives
// messages; a Table is read-only after that and safe to share.
//
// Resolution prefers an entry for the payload's concrete type. Otherwise the
// first registered interface entry the payload satisfies wins.
type Table struct {
	concrete []route
	iface    []route
	seen     map[reflect.Type]struct{}
}

// NewTable returns an empty handler table.
func NewTable() *Table {
	return &Table{seen: make(map[reflect.Type]struct{})}
}

// Handle adds a handler for payloads of type T and returns the table for
// chaining. It panics if T is already handled by the table.
func Handle[T any](t *Table, fn func(ctx context.Context, msg T, mctx MessageContext) (any, error)) *Table {
	h := func(ctx context.Context, payload any, mctx MessageContext) (any, error) {
		return fn(ctx, payload.(T), mctx)
	}
	t.add(h, TypeOf[T]())
	return t
}

// HandleUnion adds one handler accepting a closed set of payload types. The
// handler is expected to switch over the concrete type.
func HandleUnion(t *Table, h Handler, types ...TypeMatcher) *Table {
	if len(types) == 0 {
		panic("agent: HandleUnion requires at least one type")
	}
	t.add(h, types...)
	return t
}

func (t *Table) add(h Handler, types ...TypeMatcher) {
	if h == nil {
		panic("agent: nil handler")
	}
	if t.seen == nil {
		t.seen = make(map[reflect.Type]struct{})
	}
	for _, m := range types {
		if _, dup := t.seen[m.typ]; dup {
			panic(fmt.Sprintf("agent: multiple handlers registered for %s", m.name))
		}
		t.seen[m.typ] = struct{}{}
		r := route{accepts: m, handler: h}
		if m.iface {
			t.iface = append(t.iface, r)
		} else {
			t.concrete = append(t.concrete, r)
		}
	}
}

// Resolve returns the handler for payload or ErrUnhandledMessageType.
func (t *Table) Resolve(payload any) (Handler, error) {
	if t != nil {
		for _, r := range t.concrete {
			if r.accepts.match(payload) {
				return r.handler, nil
			}
		}
		for _, r := range t.iface {
			if r.accepts.match(payload) {
				return r.handler, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrUnhandledMessageType, payload)
}

// Accepts lists the payload type names the table handles, concrete types
// first, each group in registration order.
func (t *Table) Accepts() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.concrete)+len(t.iface))
	for _, r := range t.concrete {
		names = append(names, r.accepts.name)
	}
	for _, r := range t.iface {
		names = append(names, r.accepts.name)
	}
	return names
}
