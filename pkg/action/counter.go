package action

import "context"

// Counter is the built-in sample state type: a per-session counter with
// a server-side increment and a client-only reset.
type Counter struct {
	Count int
}

// StateName returns the logical type identifier.
func (c *Counter) StateName() string {
	return "Counter"
}

// Fields returns every declared field.
func (c *Counter) Fields() map[string]any {
	return map[string]any{"count": c.Count}
}

// Hydrate loads declared fields from stored data, ignoring unknown keys.
func (c *Counter) Hydrate(data map[string]any) {
	if v, ok := data["count"]; ok {
		c.Count = toInt(v)
	}
}

// CounterType builds the Counter registration.
func CounterType() *Type {
	t := NewType("Counter", func() State { return &Counter{} })

	t.Action(&Descriptor{
		Name:   "increment",
		Params: []Param{{Name: "by", Default: 1, HasDefault: true}},
		Invoke: func(_ context.Context, st State, args []any) (any, error) {
			c := st.(*Counter)
			c.Count += toInt(args[0])
			return c.Count, nil
		},
	})

	// reset runs in the client; the server must never execute it.
	t.Action(&Descriptor{
		Name:       "reset",
		ClientOnly: true,
	})

	return t
}

// toInt normalizes JSON numbers (float64 after decoding) and native ints.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
