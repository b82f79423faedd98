// Package debug provides lightweight runtime assertions. There is no build
// tag: the assertions are compiled into every build and always checked.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import (
	"fmt"

	"github.com/golang/glog"
)

// Assert panics when cond is false. Programming-error detector only —
// never used to validate request input (that's cmn/xerrors territory).
func Assert(cond bool, a ...interface{}) {
	if !cond {
		panicWith(a...)
	}
}

func Assertf(cond bool, f string, a ...interface{}) {
	if !cond {
		panicWith(fmt.Sprintf(f, a...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panicWith(err)
	}
}

func AssertMsg(cond bool, msg string) {
	if !cond {
		panicWith(msg)
	}
}

func panicWith(a ...interface{}) {
	msg := "assertion failed"
	if len(a) > 0 {
		msg = fmt.Sprint(a...)
	}
	glog.Errorf("[DEBUG] %s", msg)
	glog.Flush()
	panic(msg)
}
