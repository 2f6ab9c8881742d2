// Command libfae exports the C ABI declared in include/fae.h. Build it as
// a static archive native shells link against:
//
//	go build -buildmode=c-archive -o libfae.a ./cmd/libfae
//
// Handles handed across the boundary are registry ids disguised as
// pointers, never real Go pointers, so a stale or forged handle fails a
// map lookup instead of corrupting memory.
package main

/*
#include <stdint.h>
#include <stdlib.h>
#include "callback.h"

typedef void *FaeCoreHandle;
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/saorsa-labs/fae/pkg/core"
	"github.com/saorsa-labs/fae/pkg/host"
)

var (
	handlesMu sync.RWMutex
	handles   = make(map[uintptr]*host.Runtime)
	nextID    uintptr
)

func register(rt *host.Runtime) C.FaeCoreHandle {
	handlesMu.Lock()
	nextID++
	id := nextID
	handles[id] = rt
	handlesMu.Unlock()
	return C.FaeCoreHandle(unsafe.Pointer(id))
}

func lookup(h C.FaeCoreHandle) *host.Runtime {
	handlesMu.RLock()
	rt := handles[uintptr(unsafe.Pointer(h))]
	handlesMu.RUnlock()
	return rt
}

func unregister(h C.FaeCoreHandle) *host.Runtime {
	handlesMu.Lock()
	id := uintptr(unsafe.Pointer(h))
	rt := handles[id]
	delete(handles, id)
	handlesMu.Unlock()
	return rt
}

//export fae_core_init
func fae_core_init(configJSON *C.char) C.FaeCoreHandle {
	if configJSON == nil {
		return nil
	}
	fae_keep_alive()
	rt, err := core.Open(C.GoString(configJSON))
	if err != nil {
		return nil
	}
	return register(rt)
}

//export fae_core_start
func fae_core_start(h C.FaeCoreHandle) C.int32_t {
	rt := lookup(h)
	if rt == nil {
		return -1
	}
	if err := rt.Start(); err != nil {
		return -1
	}
	return 0
}

//export fae_core_send_command
func fae_core_send_command(h C.FaeCoreHandle, commandJSON *C.char) *C.char {
	rt := lookup(h)
	if rt == nil || commandJSON == nil {
		return nil
	}
	resp, err := rt.SendCommand(C.GoString(commandJSON))
	if err != nil {
		return nil
	}
	return C.CString(resp)
}

//export fae_core_poll_event
func fae_core_poll_event(h C.FaeCoreHandle) *C.char {
	rt := lookup(h)
	if rt == nil {
		return nil
	}
	ev, ok := rt.PollEvent()
	if !ok {
		return nil
	}
	return C.CString(ev)
}

//export fae_core_set_event_callback
func fae_core_set_event_callback(h C.FaeCoreHandle, cb C.FaeEventCallback, userData unsafe.Pointer) {
	rt := lookup(h)
	if rt == nil {
		return
	}
	if cb == nil {
		rt.SetEventCallback(nil)
		return
	}
	rt.SetEventCallback(func(eventJSON string) {
		cs := C.CString(eventJSON)
		C.fae_invoke_event_callback(cb, cs, userData)
		C.free(unsafe.Pointer(cs))
	})
}

//export fae_core_stop
func fae_core_stop(h C.FaeCoreHandle) {
	if rt := lookup(h); rt != nil {
		rt.Stop()
	}
}

//export fae_core_destroy
func fae_core_destroy(h C.FaeCoreHandle) {
	if h == nil {
		return
	}
	if rt := unregister(h); rt != nil {
		rt.Close()
	}
}

//export fae_string_free
func fae_string_free(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

//export fae_keep_alive
func fae_keep_alive() {}

func main() {}
