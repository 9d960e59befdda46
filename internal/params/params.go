// Package params resolves CloudFormation template parameters against a
// chain of datasource scopes, producing the exact parameter list a
// CreateStack or UpdateStack call requires.
package params

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
)

// ErrNotFound is returned by a Source when a key is absent from every scope
// it searches.
var ErrNotFound = errors.New("parameter not found")

// Source supplies parameter values by key. Lookup searches the source's own
// fallback chain and returns ErrNotFound when the key is absent at every
// level. Values may be scalars or sequences of scalars.
type Source interface {
	Lookup(key string) (any, error)
}

// Definition is a single parameter declaration from a template. A nil
// Default marks the parameter as required.
type Definition struct {
	Key     string
	Default any
}

// Template is the parameter block of a parsed template. The slice order is
// the resolution order.
type Template struct {
	Parameters []Definition
}

// ResolutionError reports a required parameter that could not be resolved
// from any scope. Resolution fails as a whole; a partial parameter list is
// never produced.
type ResolutionError struct {
	Key   string
	Cause error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve required parameter %q: %v", e.Key, e.Cause)
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// Resolve builds the parameter list for a provisioning call. A declared
// default is used only when the source has no override for the key;
// otherwise the source's chained lookup decides the value. Sequence values
// are flattened to comma-joined strings.
func Resolve(tmpl Template, src Source) ([]types.Parameter, error) {
	resolved := make([]types.Parameter, 0, len(tmpl.Parameters))
	for _, def := range tmpl.Parameters {
		value, err := resolveOne(def, src)
		if err != nil {
			return nil, &ResolutionError{Key: def.Key, Cause: err}
		}
		resolved = append(resolved, types.Parameter{
			ParameterKey:   aws.String(def.Key),
			ParameterValue: aws.String(value),
		})
	}
	return resolved, nil
}

func resolveOne(def Definition, src Source) (string, error) {
	value, err := src.Lookup(def.Key)
	switch {
	case err == nil:
		return flatten(value), nil
	case errors.Is(err, ErrNotFound) && def.Default != nil:
		return flatten(def.Default), nil
	default:
		return "", err
	}
}

// flatten renders a value as the string form CloudFormation expects,
// comma-joining sequences.
func flatten(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
