package output

import (
	"context"

	"formscout/internal/domain/entity"
)

// ValueProvider supplies values during the fill phase. The second return
// reports whether a value is available at all; declining a field is not an
// error. For choice fields the provider picks from the descriptor's
// resolved option set.
type ValueProvider interface {
	ValueFor(ctx context.Context, field *entity.FieldDescriptor) (string, bool, error)
}

// ValueProviderFunc adapts a function to the ValueProvider interface.
type ValueProviderFunc func(ctx context.Context, field *entity.FieldDescriptor) (string, bool, error)

func (f ValueProviderFunc) ValueFor(ctx context.Context, field *entity.FieldDescriptor) (string, bool, error) {
	return f(ctx, field)
}
