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
	"sync"
	"sync/atomic"
)

// fault scopes
const (
	FAULTS_SCOPE_KV = iota
	FAULTS_SCOPE_RPC
	FAULTS_COUNT
)

var faultsSwitch [FAULTS_COUNT]Faults

// Faults holds the injected failures of one scope. Nothing fires until the
// scope is opened.
type Faults struct {
	_enable atomic.Bool
	_faults sync.Map
}

type FaultAction struct {
	Args   []string
	Action func([]string) error
	fired  atomic.Int64
}

func scopeOf(scope int) *Faults {
	if scope >= FAULTS_COUNT || scope < 0 {
		return nil
	}
	return &faultsSwitch[scope]
}

func Open(scope int) {
	if faults := scopeOf(scope); faults != nil {
		faults._enable.Store(true)
	}
}

// Close disables the scope and forgets its faults.
func Close(scope int) {
	if faults := scopeOf(scope); faults != nil {
		faults._enable.Store(false)
		faults._faults.Clear()
	}
}

func Check(scope int, faultName string) *FaultAction {
	faults := scopeOf(scope)
	if faults == nil || !faults._enable.Load() {
		return nil
	}
	val, ok := faults._faults.Load(faultName)
	if !ok {
		return nil
	}
	return val.(*FaultAction)
}

// Fire runs the action registered under faultName, if any. Kv and rpc
// call sites fire before doing real work.
func Fire(scope int, faultName string) error {
	act := Check(scope, faultName)
	if act == nil || act.Action == nil {
		return nil
	}
	act.fired.Add(1)
	return act.Action(act.Args)
}

// firedCount is how many times faultName ran since it was registered.
func firedCount(scope int, faultName string) int64 {
	act := Check(scope, faultName)
	if act == nil {
		return 0
	}
	return act.fired.Load()
}

// Register arms faultName in an open scope. It is a no-op on a closed one.
func Register(scope int, faultName string, args []string, action func([]string) error) {
	faults := scopeOf(scope)
	if faults == nil || !faults._enable.Load() {
		return
	}
	faults._faults.Store(faultName, &FaultAction{Args: args, Action: action})
}
