package hub

import (
	"context"
	"fmt"
)

// Document is a raw record of a remote collection as pushed by the store.
type Document struct {
	ID     string
	Fields map[string]any
}

// RemoteStore is a document store keyed by collection path.
// Every snapshot pushed to a subscriber describes the whole collection.
//
// Implementations must deliver snapshots to a single subscription in order and
// must never push an older revision of a collection after a newer one.
type RemoteStore interface {
	// Subscribe opens a live subscription to the collection at path.
	// onSnapshot receives the full current document list on every change,
	// including an initial push (possibly empty). onError is called when the
	// subscription fails; no further pushes follow an error.
	// The returned function releases the subscription and is safe to call more than once.
	Subscribe(ctx context.Context, path string, onSnapshot func([]Document), onError func(error)) (func(), error)

	// Create adds a document with a store-assigned id and returns the id.
	// Field values may be ServerTimestamp.
	Create(ctx context.Context, path string, fields map[string]any) (string, error)

	// Update applies fields to the document atomically, provided every condition
	// holds against the current stored state. Keys are field paths; values may be
	// transforms (Increment, ArrayUnion, ServerTimestamp).
	// Returns ErrNotFound if the document does not exist and a *ConditionError
	// if a condition fails.
	Update(ctx context.Context, path string, id string, fields map[string]any, conds ...Condition) error

	// Delete removes the document, provided every condition holds.
	// Deleting a missing document returns ErrNotFound.
	Delete(ctx context.Context, path string, id string, conds ...Condition) error

	// Close releases the store and all open subscriptions.
	Close() error
}

// Transform is a field value computed by the store at write time.
type Transform interface {
	transform()
}

type serverTimestamp struct{}

func (serverTimestamp) transform() {}

// ServerTimestamp is replaced by the store's clock when the write is applied.
var ServerTimestamp Transform = serverTimestamp{}

// IncrementTransform adds By to a numeric field. A missing field counts as zero.
type IncrementTransform struct {
	By int64
}

func (IncrementTransform) transform() {}

// Increment returns a transform adding n to a numeric field.
func Increment(n int64) IncrementTransform {
	return IncrementTransform{By: n}
}

// ArrayUnionTransform appends each value not already present in an array field.
type ArrayUnionTransform struct {
	Values []any
}

func (ArrayUnionTransform) transform() {}

// ArrayUnion returns a transform adding values to an array field as a set.
func ArrayUnion(values ...any) ArrayUnionTransform {
	return ArrayUnionTransform{Values: values}
}

// ConditionOp is the comparison a Condition performs.
type ConditionOp int

const (
	// OpNotContains holds when the array field is missing or lacks Value.
	OpNotContains ConditionOp = iota
	// OpEquals holds when the field exists and equals Value.
	OpEquals
)

// Condition is a predicate on the stored document evaluated atomically with a write.
type Condition struct {
	Field string
	Op    ConditionOp
	Value any
}

// NotContains returns a condition requiring that the array at field does not contain v.
func NotContains(field string, v any) Condition {
	return Condition{Field: field, Op: OpNotContains, Value: v}
}

// Equals returns a condition requiring that field equals v.
func Equals(field string, v any) Condition {
	return Condition{Field: field, Op: OpEquals, Value: v}
}

// Holds evaluates the condition against document fields.
func (c Condition) Holds(fields map[string]any) bool {
	v, ok := LookupField(fields, c.Field)
	switch c.Op {
	case OpNotContains:
		if !ok || v == nil {
			return true
		}
		arr, isArr := asSlice(v)
		if !isArr {
			return false
		}
		for _, e := range arr {
			if ValuesEqual(e, c.Value) {
				return false
			}
		}
		return true
	case OpEquals:
		return ok && ValuesEqual(v, c.Value)
	default:
		return false
	}
}

func (c Condition) String() string {
	switch c.Op {
	case OpNotContains:
		return fmt.Sprintf("%s not contains %v", c.Field, c.Value)
	case OpEquals:
		return fmt.Sprintf("%s == %v", c.Field, c.Value)
	default:
		return fmt.Sprintf("%s ?(%d) %v", c.Field, c.Op, c.Value)
	}
}

// CheckConditions returns a *ConditionError for the first condition that does not hold.
func CheckConditions(fields map[string]any, conds []Condition) error {
	for _, c := range conds {
		if !c.Holds(fields) {
			return &ConditionError{Condition: c}
		}
	}
	return nil
}
