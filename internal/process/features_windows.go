//go:build windows

package process

import (
	"context"
	"errors"
)

// OSFeatures is the default Features implementation. The Windows port only
// supports the operations the supervisor strictly needs; the rest report
// unsupported.
type OSFeatures struct{}

var errUnsupported = errors.New("process feature not supported on windows")

func (OSFeatures) Suspend(int) error                       { return errUnsupported }
func (OSFeatures) Resume(int) error                        { return errUnsupported }
func (OSFeatures) Username(int) (string, error)            { return "", errUnsupported }
func (OSFeatures) Dump(context.Context, int, string) error { return errUnsupported }
