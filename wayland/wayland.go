// Package wayland provides partial bindings for libwayland.

// Only the subset of client API needed for a single shm-backed xdg toplevel
// has been bound: globals, surfaces, frame callbacks, shm pools and buffers.
// No thought has been given to code generation or supporting arbitrary,
// user-supplied protocol extensions.
package wayland

// #cgo pkg-config: wayland-client
// #include <errno.h>
// #include <stdlib.h>
// #include <wayland-client.h>
// #include "xdg-shell-client-protocol.h"
//
// int dispatcher(void *user_data, void *target, uint32_t opcode, struct wl_message *msg, union wl_argument *args);
import "C"

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"syscall"
	"unicode"
	"unsafe"

	"github.com/pkg/errors"
	"honnef.co/go/safeish"
)

//go:generate ./generate_wayland.sh

var CompositorInterface = &C.wl_compositor_interface
var ShmInterface = &C.wl_shm_interface
var XdgWmBaseInterface = &C.xdg_wm_base_interface

// Interface names as advertised by the registry.
const (
	CompositorName = "wl_compositor"
	ShmName        = "wl_shm"
	XdgWmBaseName  = "xdg_wm_base"
)

type Display struct {
	hnd     *C.struct_wl_display
	proxies map[*C.struct_wl_proxy]any
	pinner  runtime.Pinner

	methods map[methodKey]reflect.Method
	// space reused by dispatcher for creating call args
	callArgs []reflect.Value
	// space reused by dispatcher for computing method name
	methName []byte
}

type methodKey struct {
	typ  reflect.Type
	name string
}

// Connect connects to the named display. An empty name uses $WAYLAND_DISPLAY,
// falling back to wayland-0.
func Connect(name string) (*Display, error) {
	var cname *C.char
	if name != "" {
		cname = C.CString(name)
		defer C.free(unsafe.Pointer(cname))
	}
	dsp, err := C.wl_display_connect(cname)
	if dsp == nil {
		return nil, fmt.Errorf("couldn't connect to Wayland server: %s", err)
	}
	d := &Display{
		hnd:     dsp,
		proxies: make(map[*C.struct_wl_proxy]any),
		methods: make(map[methodKey]reflect.Method),
	}
	d.pinner.Pin(d)
	return d, nil
}

func (dsp *Display) Disconnect() {
	if dsp.hnd == nil {
		panic("double close of wayland.Display")
	}
	C.wl_display_disconnect(dsp.hnd)
	dsp.hnd = nil
	dsp.pinner.Unpin()
}

func (dsp *Display) Fd() uintptr {
	return uintptr(C.wl_display_get_fd(dsp.hnd))
}

func (dsp *Display) Flush() (int, error) {
	n, err := C.wl_display_flush(dsp.hnd)
	return int(n), err
}

// Dispatch blocks until at least one event has been read and dispatched.
// The error is only set when libwayland reports failure; errno left behind
// by a successful call is ignored.
func (dsp *Display) Dispatch() (int, error) {
	n, err := C.wl_display_dispatch(dsp.hnd)
	if n == -1 {
		return -1, dsp.failure("dispatch", err)
	}
	return int(n), nil
}

func (dsp *Display) DispatchPending() int {
	n := int(C.wl_display_dispatch_pending(dsp.hnd))
	return n
}

func (dsp *Display) Roundtrip() (int, error) {
	n, err := C.wl_display_roundtrip(dsp.hnd)
	if n == -1 {
		return -1, dsp.failure("roundtrip", err)
	}
	return int(n), nil
}

// Err returns the fatal error of the connection, if any. Protocol errors
// name the interface and object they were raised on.
func (dsp *Display) Err() error {
	code := C.wl_display_get_error(dsp.hnd)
	if code == 0 {
		return nil
	}
	if code == C.EPROTO {
		var iface *C.struct_wl_interface
		var id C.uint32_t
		pcode := C.wl_display_get_protocol_error(dsp.hnd, &iface, &id)
		name := "unknown"
		if iface != nil {
			name = C.GoString(iface.name)
		}
		return errors.Errorf("protocol error %d on %s@%d", uint32(pcode), name, uint32(id))
	}
	return syscall.Errno(code)
}

func (dsp *Display) failure(op string, errno error) error {
	if err := dsp.Err(); err != nil {
		return errors.Wrap(err, op)
	}
	if errno == nil {
		return errors.Errorf("%s failed", op)
	}
	return errors.Wrap(errno, op)
}

func (dsp *Display) Registry() (*Registry, error) {
	hnd := C.wl_display_get_registry(dsp.hnd)
	if hnd == nil {
		return nil, errors.New("wl_display.get_registry failed")
	}
	reg := &Registry{
		dsp: dsp,
		hnd: hnd,
	}
	dsp.add((*C.struct_wl_proxy)(reg.hnd), reg)
	return reg, nil
}

func (dsp *Display) add(proxy *C.struct_wl_proxy, obj any) {
	dsp.proxies[proxy] = obj
	dsp.addDispatcher(proxy)
}

func (dsp *Display) addDispatcher(proxy *C.struct_wl_proxy) {
	C.wl_proxy_add_dispatcher(proxy, (*[0]byte)(C.dispatcher), unsafe.Pointer(&dsp.hnd), nil)
}

func (dsp *Display) forget(proxy *C.struct_wl_proxy) {
	delete(dsp.proxies, proxy)
}

type Callback struct {
	dsp    *Display
	hnd    *C.struct_wl_callback
	OnDone func(data uint32)
}

func (cb *Callback) internal() any {
	return (*callback)(cb)
}

// Destroy may be called after the callback has fired; it is a no-op then.
func (cb *Callback) Destroy() {
	if cb.hnd == nil {
		return
	}
	C.wl_callback_destroy(cb.hnd)
	cb.dsp.forget((*C.struct_wl_proxy)(cb.hnd))
	cb.hnd = nil
}

type callback Callback

// Done destroys the callback before running OnDone, so that OnDone is free to
// request the next callback on the same surface.
func (cb *callback) Done(data uint32) {
	(*Callback)(cb).Destroy()
	if cb.OnDone != nil {
		cb.OnDone(data)
	}
}

func (dsp *Display) Sync(fn func(data uint32)) (*Callback, error) {
	hnd := C.wl_display_sync(dsp.hnd)
	if hnd == nil {
		return nil, errors.New("wl_display.sync failed")
	}
	cb := &Callback{
		dsp:    dsp,
		hnd:    hnd,
		OnDone: fn,
	}
	dsp.add((*C.struct_wl_proxy)(cb.hnd), cb)
	return cb, nil
}

type Output uint32

//export dispatcher
func dispatcher(
	// XXX find out what this function is meant to return
	data unsafe.Pointer,
	target unsafe.Pointer,
	opcode uint32,
	msg *C.struct_wl_message,
	args *C.union_wl_argument,
) C.int {
	dsp := (*Display)(data)
	sig := C.GoString(msg.signature)
	obj := dsp.proxies[(*C.struct_wl_proxy)(target)]
	if obj == nil {
		// Events queued for a proxy we already destroyed.
		return 0
	}

	n := safeish.FindNull(safeish.Cast[*byte](msg.name))
	methNameB := dsp.methName
	if cap(methNameB) >= n {
		methNameB = methNameB[:n]
	} else {
		methNameB = make([]byte, n)
		dsp.methName = methNameB[:0]
	}
	copy(methNameB, unsafe.Slice(safeish.Cast[*byte](msg.name), n))
	// Wayland doesn't use Unicode in event names, so this is fine.
	methNameB[0] = byte(unicode.ToUpper(rune(methNameB[0])))
	methName := unsafe.String(&methNameB[0], len(methNameB))

	// XXX validate arg length, and function name
	var meth reflect.Value
	var recv reflect.Value
	if inter, ok := obj.(internaler); ok {
		internal := inter.internal()
		typ := reflect.TypeOf(internal)
		tmeth, ok := dsp.methods[methodKey{typ: typ, name: methName}]
		if !ok {
			tmeth, ok = typ.MethodByName(methName)
			if !ok {
				// XXX don't panic
				panic(fmt.Sprintf("couldn't find method %q on %T", methNameB, inter.internal()))
			}
			dsp.methods[methodKey{typ: typ, name: strings.Clone(methName)}] = tmeth
		}
		meth = tmeth.Func
		recv = reflect.ValueOf(internal)
	} else {
		meth = reflect.ValueOf(obj).Elem().FieldByName("On" + methName)
		if !meth.IsValid() {
			// XXX don't panic
			panic(fmt.Sprintf("couldn't find field %q on %T", "On"+methName, obj))
		}
	}
	if meth.IsNil() {
		return 0
	}

	var i int
	var argOffset int
	callArgs := dsp.callArgs[:0]
	if recv.IsValid() {
		i++
		argOffset = -1
		callArgs = append(callArgs, recv)
	}
	for _, c := range sig {
		arg := unsafe.Add(unsafe.Pointer(args), (i+argOffset)*len(C.union_wl_argument{}))
		// XXX validate that i < meth.Type().NumIn
		// XXX validate that types match
		switch c {
		case 'i':
			callArgs = append(callArgs, reflect.ValueOf(*(*int32)(arg)).Convert(meth.Type().In(int(i))))
		case 'u':
			callArgs = append(callArgs, reflect.ValueOf(*(*uint32)(arg)).Convert(meth.Type().In(int(i))))
		case 'f':
			callArgs = append(callArgs, reflect.ValueOf(*(*C.wl_fixed_t)(arg)))
		case 's':
			callArgs = append(callArgs, reflect.ValueOf(C.GoString(*(**C.char)(arg))))
		case 'o':
			callArgs = append(callArgs, reflect.ValueOf(*(*uint32)(arg)).Convert(meth.Type().In(int(i))))
		case 'a':
			arr := *(**C.struct_wl_array)(arg)
			// XXX validate that arr.Size and arr.Alloc make sense for the given element type
			switch elem := meth.Type().In(int(i)).Elem(); elem {
			case reflect.TypeOf(int32(0)):
				callArgs = append(callArgs, reflect.ValueOf(unsafe.Slice((*int32)(arr.data), arr.size/4)))
			case reflect.TypeOf(uint32(0)):
				callArgs = append(callArgs, reflect.ValueOf(unsafe.Slice((*uint32)(arr.data), arr.size/4)))
			default:
				// XXX support all types we need
				panic(fmt.Sprintf("unsupported array element type %s", elem))
			}
		case 'n', 'h':
			// None of the bound interfaces send new_id or fd events.
			panic(fmt.Sprintf("unsupported argument type %q in %s", c, methName))
		case '?':
			continue
		case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			continue
		default:
			panic(c)
		}
		i++
	}
	meth.Call(callArgs)
	dsp.callArgs = callArgs[:0]
	return 0
}

type Registry struct {
	dsp *Display
	hnd *C.struct_wl_registry

	OnGlobal       func(name uint32, iface string, version uint32)
	OnGlobalRemove func(name uint32)
}

type internaler interface {
	internal() any
}

func (reg *Registry) Destroy() {
	C.wl_registry_destroy(reg.hnd)
	reg.dsp.forget((*C.struct_wl_proxy)(reg.hnd))
	reg.hnd = nil
}

func (reg *Registry) bind(name uint32, iface *C.struct_wl_interface, vers uint32) (*C.struct_wl_proxy, error) {
	p := (*C.struct_wl_proxy)(C.wl_registry_bind(reg.hnd, C.uint(name), iface, C.uint(vers)))
	if p == nil {
		return nil, errors.Errorf("wl_registry.bind(%s) failed", C.GoString(iface.name))
	}
	return p, nil
}

func (reg *Registry) BindCompositor(name uint32, vers uint32) (*Compositor, error) {
	p, err := reg.bind(name, CompositorInterface, vers)
	if err != nil {
		return nil, err
	}
	comp := &Compositor{
		dsp:  reg.dsp,
		hnd:  (*C.struct_wl_compositor)(p),
		vers: int(vers),
	}
	reg.dsp.add(p, comp)
	return comp, nil
}

func (reg *Registry) BindShm(name uint32, vers uint32) (*Shm, error) {
	p, err := reg.bind(name, ShmInterface, vers)
	if err != nil {
		return nil, err
	}
	shm := &Shm{
		dsp:  reg.dsp,
		hnd:  (*C.struct_wl_shm)(p),
		vers: int(vers),
	}
	reg.dsp.add(p, shm)
	return shm, nil
}

func (reg *Registry) BindXdgWmBase(name uint32, vers uint32) (*XdgWmBase, error) {
	p, err := reg.bind(name, XdgWmBaseInterface, vers)
	if err != nil {
		return nil, err
	}
	xdg := &XdgWmBase{
		dsp:  reg.dsp,
		hnd:  (*C.struct_xdg_wm_base)(p),
		vers: int(vers),
	}
	reg.dsp.add(p, xdg)
	return xdg, nil
}

type Compositor struct {
	dsp  *Display
	hnd  *C.struct_wl_compositor
	vers int
}

func (comp *Compositor) Version() int { return comp.vers }

func (comp *Compositor) CreateSurface() (*Surface, error) {
	hnd := C.wl_compositor_create_surface(comp.hnd)
	if hnd == nil {
		return nil, errors.New("wl_compositor.create_surface failed")
	}
	surf := &Surface{
		dsp:  comp.dsp,
		hnd:  hnd,
		vers: comp.vers,
	}
	comp.dsp.add((*C.struct_wl_proxy)(surf.hnd), surf)
	return surf, nil
}

func (comp *Compositor) Destroy() {
	C.wl_compositor_destroy(comp.hnd)
	comp.dsp.forget((*C.struct_wl_proxy)(comp.hnd))
}

type Surface struct {
	dsp  *Display
	hnd  *C.struct_wl_surface
	vers int

	OnEnter func(output Output)
	OnLeave func(output Output)
}

func (surf *Surface) Version() int { return surf.vers }

func (surf *Surface) Destroy() {
	C.wl_surface_destroy(surf.hnd)
	surf.dsp.forget((*C.struct_wl_proxy)(surf.hnd))
}

// Attach attaches buf at (x, y). A nil buf detaches the current content.
func (surf *Surface) Attach(buf *Buffer, x, y int32) {
	var hnd *C.struct_wl_buffer
	if buf != nil {
		hnd = buf.hnd
	}
	C.wl_surface_attach(surf.hnd, hnd, C.int32_t(x), C.int32_t(y))
}

func (surf *Surface) Damage(x, y, width, height int32) {
	C.wl_surface_damage(surf.hnd, C.int(x), C.int(y), C.int(width), C.int(height))
}

func (surf *Surface) Frame(fn func(data uint32)) (*Callback, error) {
	hnd := C.wl_surface_frame(surf.hnd)
	if hnd == nil {
		return nil, errors.New("wl_surface.frame failed")
	}
	cb := &Callback{
		dsp:    surf.dsp,
		hnd:    hnd,
		OnDone: fn,
	}
	surf.dsp.add((*C.struct_wl_proxy)(cb.hnd), cb)
	return cb, nil
}

func (surf *Surface) Commit() {
	C.wl_surface_commit(surf.hnd)
}

type Shm struct {
	dsp  *Display
	hnd  *C.struct_wl_shm
	vers int
	// XXX format should be of type SHmFormat, but for that we have to improve our
	// reflection.
	OnFormat func(format uint32)
}

func (shm *Shm) Version() int { return shm.vers }

func (shm *Shm) Destroy() {
	C.wl_shm_destroy(shm.hnd)
	shm.dsp.forget((*C.struct_wl_proxy)(shm.hnd))
}

// CreatePool shares fd with the compositor. The compositor keeps its own
// reference, so the caller may close fd once the pool's buffers exist.
func (shm *Shm) CreatePool(fd int32, sz int32) (*ShmPool, error) {
	hnd := C.wl_shm_create_pool(shm.hnd, C.int(fd), C.int(sz))
	if hnd == nil {
		return nil, errors.New("wl_shm.create_pool failed")
	}
	pool := &ShmPool{
		dsp:  shm.dsp,
		hnd:  hnd,
		vers: shm.vers,
	}
	shm.dsp.add((*C.struct_wl_proxy)(pool.hnd), pool)
	return pool, nil
}

type ShmPool struct {
	dsp  *Display
	hnd  *C.struct_wl_shm_pool
	vers int
}

func (pool *ShmPool) Version() int { return pool.vers }

func (pool *ShmPool) Destroy() {
	C.wl_shm_pool_destroy(pool.hnd)
	pool.dsp.forget((*C.struct_wl_proxy)(pool.hnd))
}

func (pool *ShmPool) CreateBuffer(offset, width, height, stride int32, format ShmFormat) (*Buffer, error) {
	hnd := C.wl_shm_pool_create_buffer(pool.hnd, C.int(offset), C.int(width), C.int(height), C.int(stride), C.uint(format))
	if hnd == nil {
		return nil, errors.Errorf("wl_shm_pool.create_buffer at offset %d failed", offset)
	}
	buf := &Buffer{
		dsp:  pool.dsp,
		hnd:  hnd,
		vers: pool.vers,
	}
	pool.dsp.add((*C.struct_wl_proxy)(buf.hnd), buf)
	return buf, nil
}

type Buffer struct {
	dsp       *Display
	hnd       *C.struct_wl_buffer
	vers      int
	OnRelease func()
}

func (buf *Buffer) Version() int { return buf.vers }

func (buf *Buffer) Destroy() {
	C.wl_buffer_destroy(buf.hnd)
	buf.dsp.forget((*C.struct_wl_proxy)(buf.hnd))
}

type XdgWmBase struct {
	dsp    *Display
	hnd    *C.struct_xdg_wm_base
	vers   int
	OnPing func(serial uint32)
}

func (xdg *XdgWmBase) Version() int { return xdg.vers }

func (xdg *XdgWmBase) Destroy() {
	C.xdg_wm_base_destroy(xdg.hnd)
	xdg.dsp.forget((*C.struct_wl_proxy)(xdg.hnd))
}

func (xdg *XdgWmBase) XdgSurface(surf *Surface) (*XdgSurface, error) {
	hnd := C.xdg_wm_base_get_xdg_surface(xdg.hnd, surf.hnd)
	if hnd == nil {
		return nil, errors.New("xdg_wm_base.get_xdg_surface failed")
	}
	xdgSurf := &XdgSurface{
		dsp:  xdg.dsp,
		hnd:  hnd,
		vers: xdg.vers,
	}
	xdg.dsp.add((*C.struct_wl_proxy)(xdgSurf.hnd), xdgSurf)
	return xdgSurf, nil
}

func (xdg *XdgWmBase) Pong(serial uint32) {
	C.xdg_wm_base_pong(xdg.hnd, C.uint32_t(serial))
}

type XdgSurface struct {
	dsp         *Display
	hnd         *C.struct_xdg_surface
	vers        int
	OnConfigure func(serial uint32)
}

func (surf *XdgSurface) Version() int { return surf.vers }

func (surf *XdgSurface) Destroy() {
	C.xdg_surface_destroy(surf.hnd)
	surf.dsp.forget((*C.struct_wl_proxy)(surf.hnd))
}

func (surf *XdgSurface) Toplevel() (*XdgToplevel, error) {
	hnd := C.xdg_surface_get_toplevel(surf.hnd)
	if hnd == nil {
		return nil, errors.New("xdg_surface.get_toplevel failed")
	}
	top := &XdgToplevel{
		dsp:  surf.dsp,
		hnd:  hnd,
		vers: surf.vers,
	}
	surf.dsp.add((*C.struct_wl_proxy)(top.hnd), top)
	return top, nil
}

func (surf *XdgSurface) AckConfigure(serial uint32) {
	C.xdg_surface_ack_configure(surf.hnd, C.uint(serial))
}

type XdgToplevel struct {
	dsp                *Display
	hnd                *C.struct_xdg_toplevel
	vers               int
	OnConfigure        func(width, height int32, states []uint32)
	OnClose            func()
	OnConfigure_bounds func(width, height int32)
	OnWm_capabilities  func([]uint32)
}

func (top *XdgToplevel) Version() int { return top.vers }

func (top *XdgToplevel) Destroy() {
	C.xdg_toplevel_destroy(top.hnd)
	top.dsp.forget((*C.struct_wl_proxy)(top.hnd))
}

func (top *XdgToplevel) SetTitle(s string) {
	cstr := C.CString(s)
	defer C.free(unsafe.Pointer(cstr))
	C.xdg_toplevel_set_title(top.hnd, cstr)
}

func (top *XdgToplevel) SetAppID(s string) {
	cstr := C.CString(s)
	defer C.free(unsafe.Pointer(cstr))
	C.xdg_toplevel_set_app_id(top.hnd, cstr)
}
