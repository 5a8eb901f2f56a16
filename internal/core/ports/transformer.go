package ports

import "context"

// TransformOutput is the result of compiling one source file.
type TransformOutput struct {
	// Code is the transformed source text.
	Code []byte
	// Map is the serialized source map for Code, or nil.
	Map []byte
}

// Transformer is the external source-to-source compiler.
//
//go:generate mockgen -source=transformer.go -destination=mocks/mock_transformer.go -package=mocks
type Transformer interface {
	// Transform compiles the file at path. It returns an error wrapping
	// domain.ErrIgnoredByPolicy when its include/exclude rules skip the path.
	Transform(ctx context.Context, path string) (TransformOutput, error)
}
