// Package llm streams free-form answers from a hosted language model.
package llm

import "context"

// Passthrough produces text fragments for a prompt. fn is called once per
// fragment in order; an error from fn stops the stream and is returned.
type Passthrough interface {
	Name() string
	Stream(ctx context.Context, prompt string, fn func(fragment string) error) error
}
