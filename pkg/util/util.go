// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"fmt"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
)

func FileIsValid(path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !stat.IsDir()
}

// ConvertPanicError turns a recovered value into an error carrying the
// stack of the panic.
func ConvertPanicError(v interface{}) error {
	if err, ok := v.(error); ok {
		return errors.Wrapf(err, "panic: %+v", Callers(3))
	}
	return errors.Newf("panic %v: %+v", v, Callers(3))
}

type Stack []uintptr

// Callers makes the depth customizable.
func Callers(depth int) *Stack {
	const numFrames = 32
	var pcs [numFrames]uintptr
	n := runtime.Callers(2+depth, pcs[:])
	var st Stack = pcs[0:n]
	return &st
}

func (s *Stack) Format(st fmt.State, verb rune) {
	for _, pc := range *s {
		f := runtime.FuncForPC(pc - 1)
		if f == nil {
			continue
		}
		file, line := f.FileLine(pc - 1)
		fmt.Fprintf(st, "\n%s\n\t%s:%d", f.Name(), file, line)
	}
}
