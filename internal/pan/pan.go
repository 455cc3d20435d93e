// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pan

import (
	"import.name/pan"
)

var z = new(pan.Zone)

var (
	Check = z.Check
	Panic = z.Panic
)

// Error converts a recovered value into the error which was passed to
// Check or Panic in this package.  Foreign panics propagate.
func Error(x any) error {
	return z.Error(x)
}

func Must[T any](x T, err error) T {
	Check(err)
	return x
}
