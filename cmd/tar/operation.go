package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/please-build/ustar"
)

// Operation is the one thing a tar invocation does: a CreateOperation, ExtractOperation or
// ListOperation.
type Operation interface {
	isOperation()
}

// CreateOperation archives Paths into Archive.
type CreateOperation struct {
	Archive string
	Paths   []string
}

// ExtractOperation unpacks Archive.
type ExtractOperation struct {
	Archive string
}

// ListOperation prints the members of Archive.
type ListOperation struct {
	Archive string
}

func (CreateOperation) isOperation()  {}
func (ExtractOperation) isOperation() {}
func (ListOperation) isOperation()    {}

func execute(ctx context.Context, op Operation, opts []ustar.Option) error {
	switch op := op.(type) {
	case CreateOperation:
		return ustar.Create(ctx, op.Archive, op.Paths, opts...)
	case ExtractOperation:
		return ustar.Extract(ctx, op.Archive, opts...)
	case ListOperation:
		return ustar.List(ctx, op.Archive, opts...)
	}
	return errors.Errorf("unknown operation %T", op)
}

var (
	errNoOperation       = errors.New("you must specify one of the '-ctx' options")
	errTooManyOperations = errors.New("you may not specify more than one '-ctx' option")
	errNoArchive         = errors.New("an archive must be named with -f")
)

// selectOperation turns the operation flags into exactly one Operation.
func selectOperation(create, extract, list bool, archive string, args []string) (Operation, error) {
	n := 0
	for _, set := range []bool{create, extract, list} {
		if set {
			n++
		}
	}
	switch {
	case n == 0:
		return nil, &ustar.Error{Kind: ustar.KindOperation, Err: errNoOperation}
	case n > 1:
		return nil, &ustar.Error{Kind: ustar.KindOperation, Err: errTooManyOperations}
	case archive == "":
		return nil, &ustar.Error{Kind: ustar.KindOperation, Err: errNoArchive}
	}

	switch {
	case create:
		return CreateOperation{Archive: archive, Paths: args}, nil
	case len(args) > 0:
		return nil, &ustar.Error{Kind: ustar.KindOperation, Err: errors.Errorf("unexpected arguments %q", args)}
	case extract:
		return ExtractOperation{Archive: archive}, nil
	default:
		return ListOperation{Archive: archive}, nil
	}
}
