// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && riscv64

package cmd

import (
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/term"

	"github.com/usbarmory/tamago/soc/sifive/fu540"
)

func init() {
	Add(Cmd{
		Name:    "hwpmp",
		Args:    1,
		Pattern: regexp.MustCompile(`^hwpmp (\d+)$`),
		Syntax:  "<index>",
		Help:    "read hardware PMP CSR",
		Fn:      pmpRead,
	})
}

func pmpRead(_ *term.Terminal, arg []string) (res string, err error) {
	i, err := strconv.ParseUint(arg[0], 10, 8)

	if err != nil {
		return "", fmt.Errorf("invalid index, %v", err)
	}

	addr, r, w, x, a, l, err := fu540.RV64.ReadPMP(int(i))

	if err != nil {
		return
	}

	return fmt.Sprintf("PMP:%.2d addr:%.16x A:%d R:%v W:%v X:%v l:%v", i, addr, a, r, w, x, l), nil
}
