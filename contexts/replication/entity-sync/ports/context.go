package ports

import "context"

type uniqueIdentifierKey struct{}

// WithUniqueIdentifier tags ctx with the envelope being applied so adapters
// can name it in their logs.
func WithUniqueIdentifier(ctx context.Context, uniqueIdentifier string) context.Context {
	return context.WithValue(ctx, uniqueIdentifierKey{}, uniqueIdentifier)
}

func UniqueIdentifier(ctx context.Context) string {
	id, _ := ctx.Value(uniqueIdentifierKey{}).(string)
	return id
}
