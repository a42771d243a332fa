package action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/txn2/statesync/pkg/events"
	"github.com/txn2/statesync/pkg/state"
)

// ChannelPrefix namespaces state-change events per state type, e.g.
// "state.Counter".
const ChannelPrefix = "state."

// Request is the decoded body of a mutating action call.
type Request struct {
	State   string         `json:"state"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
}

// Result is a successful dispatch outcome.
type Result struct {
	// State is the full new state after the action, every declared
	// field included.
	State map[string]any

	// Value is the action's return value.
	Value any
}

// Dispatcher executes named actions against stored state.
//
// Persistence is a single atomic full-record overwrite with no
// optimistic-concurrency check: two concurrent actions on the same
// (session, state) pair both read-then-write independently and the
// second write silently discards the first. Last writer wins is the
// chosen consistency policy.
type Dispatcher struct {
	registry    *Registry
	states      state.Store
	broadcaster *events.Broadcaster
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry *Registry, states state.Store, broadcaster *events.Broadcaster) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		states:      states,
		broadcaster: broadcaster,
	}
}

// Dispatch runs the mutation pipeline for one authenticated request:
// resolve type and action, load and hydrate state, bind arguments,
// invoke, persist the full field set, publish the change event. Every
// failure is terminal and classified; no partial persistence occurs.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, req Request) (*Result, error) {
	typ, ok := d.registry.Lookup(req.State)
	if !ok {
		return nil, Errorf(KindNotFound, "unknown state type %q", req.State)
	}

	desc, ok := typ.Descriptor(req.Action)
	if !ok {
		return nil, Errorf(KindNotFound, "unknown action %q on state %q", req.Action, req.State)
	}
	if desc.ClientOnly {
		return nil, Errorf(KindBadRequest, "action %q is client-side only", req.Action)
	}

	st := typ.New()
	rec, err := d.states.Get(ctx, sessionID, typ.Name())
	if err != nil {
		return nil, Errorf(KindInternal, "loading state: %v", err)
	}
	if rec != nil {
		st.Hydrate(rec.Data)
	}

	args, err := bindArgs(desc, req.Payload)
	if err != nil {
		return nil, err
	}

	value, err := invoke(ctx, desc, st, args)
	if err != nil {
		return nil, err
	}

	fields := st.Fields()
	if err := d.states.Put(ctx, &state.Record{
		SessionID: sessionID,
		Name:      typ.Name(),
		Data:      fields,
	}); err != nil {
		return nil, Errorf(KindInternal, "persisting state: %v", err)
	}

	d.publish(ctx, sessionID, typ.Name(), fields)

	return &Result{State: fields, Value: value}, nil
}

// bindArgs binds the payload to the declared parameters in declaration
// order. Binding is all-or-nothing: the first unsatisfiable parameter
// aborts the call before invocation.
func bindArgs(desc *Descriptor, payload map[string]any) ([]any, error) {
	args := make([]any, 0, len(desc.Params))
	for _, p := range desc.Params {
		if v, ok := payload[p.Name]; ok {
			args = append(args, v)
			continue
		}
		if p.HasDefault {
			args = append(args, p.Default)
			continue
		}
		if p.Nullable {
			args = append(args, nil)
			continue
		}
		return nil, Errorf(KindBadRequest, "missing required parameter %q", p.Name)
	}
	return args, nil
}

// invoke calls the action, converting panics and errors into internal
// failures carrying the message only.
func invoke(ctx context.Context, desc *Descriptor, st State, args []any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Errorf(KindInternal, "action %q failed: %v", desc.Name, r)
		}
	}()

	value, invokeErr := desc.Invoke(ctx, st, args)
	if invokeErr != nil {
		return nil, Errorf(KindInternal, "action %q failed: %v", desc.Name, invokeErr)
	}
	return value, nil
}

// publish emits the state-changed event. Fire and forget: its failure
// never fails the request.
func (d *Dispatcher) publish(ctx context.Context, sessionID, stateName string, fields map[string]any) {
	if d.broadcaster == nil {
		return
	}
	channel := ChannelPrefix + stateName
	payload := map[string]any{"state": fields}
	if _, err := d.broadcaster.Publish(ctx, sessionID, channel, payload, false); err != nil {
		slog.Warn("state change publish failed", "channel", channel, "error", err)
	}
}

// Channel returns the event channel for a state type name.
func Channel(stateName string) string {
	return fmt.Sprintf("%s%s", ChannelPrefix, stateName)
}
