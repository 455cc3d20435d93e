// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build gofuzz

package asm

import (
	"bytes"
)

func Fuzz(data []byte) int {
	ctx, err := Assemble(bytes.NewReader(data))
	if err != nil {
		return 0
	}

	var b bytes.Buffer
	if _, err := ctx.WriteTo(&b); err != nil {
		panic(err)
	}
	return 1
}
