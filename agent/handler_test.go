package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type circle struct{ r float64 }
type square struct{ side float64 }
type triangle struct{}

func (circle) String() string { return "circle" }

func constHandler(v any) Handler {
	return func(ctx context.Context, payload any, mctx MessageContext) (any, error) {
		return v, nil
	}
}

func TestTable_Resolve(t *testing.T) {
	table := NewTable()
	Handle(table, func(ctx context.Context, msg string, mctx MessageContext) (any, error) {
		return "string:" + msg, nil
	})
	HandleUnion(table, func(ctx context.Context, payload any, mctx MessageContext) (any, error) {
		switch s := payload.(type) {
		case circle:
			return s.r, nil
		case square:
			return s.side, nil
		default:
			return nil, fmt.Errorf("unexpected %T", payload)
		}
	}, TypeOf[circle](), TypeOf[square]())

	tests := []struct {
		name    string
		payload any
		want    any
		wantErr error
	}{
		{name: "single type", payload: "hi", want: "string:hi"},
		{name: "union member circle", payload: circle{r: 2}, want: 2.0},
		{name: "union member square", payload: square{side: 3}, want: 3.0},
		{name: "unhandled type", payload: triangle{}, wantErr: ErrUnhandledMessageType},
		{name: "nil payload", payload: nil, wantErr: ErrUnhandledMessageType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := table.Resolve(tt.payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			got, err := h(context.Background(), tt.payload, MessageContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTable_ConcreteBeatsInterface(t *testing.T) {
	table := NewTable()
	HandleUnion(table, constHandler("stringer"), TypeOf[fmt.Stringer]())
	HandleUnion(table, constHandler("any"), TypeOf[any]())
	HandleUnion(table, constHandler("circle"), TypeOf[circle]())

	h, err := table.Resolve(circle{})
	require.NoError(t, err)
	got, _ := h(context.Background(), circle{}, MessageContext{})
	assert.Equal(t, "circle", got, "concrete entry must win")

	h, err = table.Resolve(42)
	require.NoError(t, err)
	got, _ = h(context.Background(), 42, MessageContext{})
	assert.Equal(t, "any", got)

	assert.Equal(t, []string{"agent.circle", "fmt.Stringer", "interface {}"}, table.Accepts())
}

func TestTable_FirstInterfaceWins(t *testing.T) {
	table := NewTable()
	HandleUnion(table, constHandler("stringer"), TypeOf[fmt.Stringer]())
	HandleUnion(table, constHandler("any"), TypeOf[any]())

	h, err := table.Resolve(circle{})
	require.NoError(t, err)
	got, _ := h(context.Background(), circle{}, MessageContext{})
	assert.Equal(t, "stringer", got)
}

func TestTable_DuplicatePanics(t *testing.T) {
	table := NewTable()
	Handle(table, func(ctx context.Context, msg string, mctx MessageContext) (any, error) { return nil, nil })

	assert.Panics(t, func() {
		HandleUnion(table, constHandler(nil), TypeOf[int](), TypeOf[string]())
	})
	assert.Panics(t, func() { HandleUnion(table, constHandler(nil)) })
}

func firstLocal() TypeMatcher {
	type local struct{ A int }
	return TypeOf[local]()
}

func secondLocal() TypeMatcher {
	type local struct{ B int }
	return TypeOf[local]()
}

func TestTable_SameNameDistinctTypes(t *testing.T) {
	a, b := firstLocal(), secondLocal()
	require.Equal(t, a.Name(), b.Name())

	table := NewTable()
	assert.NotPanics(t, func() { HandleUnion(table, constHandler(nil), a, b) })
	assert.Len(t, table.Accepts(), 2)
	assert.Panics(t, func() { HandleUnion(table, constHandler(nil), firstLocal()) })
}

func TestTable_NilResolve(t *testing.T) {
	var table *Table
	_, err := table.Resolve("x")
	assert.True(t, errors.Is(err, ErrUnhandledMessageType))
	assert.Nil(t, table.Accepts())
}
