// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && riscv64

package arch

// enterGuest restores the guest registers from ctx and returns to the guest
// with mret, it returns to its caller once the guest traps, with the guest
// registers and trap CSRs saved in ctx.
//
// defined in context_riscv64.s
func enterGuest(ctx *context)
