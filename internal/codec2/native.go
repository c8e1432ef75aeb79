//go:build cgo && codec2

package codec2

/*
#cgo pkg-config: codec2
#include <codec2/codec2.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Native is the libcodec2 binding.
var Native Library = nativeLibrary{}

var nativeModes = map[Mode]C.int{
	Mode3200: C.CODEC2_MODE_3200,
	Mode2400: C.CODEC2_MODE_2400,
	Mode1600: C.CODEC2_MODE_1600,
	Mode1400: C.CODEC2_MODE_1400,
	Mode1300: C.CODEC2_MODE_1300,
	Mode1200: C.CODEC2_MODE_1200,
	Mode700C: C.CODEC2_MODE_700C,
}

type nativeLibrary struct{}

func (nativeLibrary) Create(mode Mode) (Engine, error) {
	cmode, ok := nativeModes[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMode, uint8(mode))
	}
	state := C.codec2_create(cmode)
	if state == nil {
		return nil, fmt.Errorf("%w: codec2_create(%s) returned NULL", ErrNativeInitFailure, mode)
	}
	return &nativeEngine{state: state}, nil
}

type nativeEngine struct {
	state *C.struct_CODEC2
}

func (e *nativeEngine) SamplesPerFrame() int {
	return int(C.codec2_samples_per_frame(e.state))
}

func (e *nativeEngine) BytesPerFrame() int {
	return int(C.codec2_bytes_per_frame(e.state))
}

func (e *nativeEngine) Encode(bits []byte, speech []int16) {
	C.codec2_encode(e.state,
		(*C.uchar)(unsafe.Pointer(&bits[0])),
		(*C.short)(unsafe.Pointer(&speech[0])))
}

func (e *nativeEngine) Decode(speech []int16, bits []byte) {
	C.codec2_decode(e.state,
		(*C.short)(unsafe.Pointer(&speech[0])),
		(*C.uchar)(unsafe.Pointer(&bits[0])))
}

func (e *nativeEngine) Destroy() {
	if e.state != nil {
		C.codec2_destroy(e.state)
		e.state = nil
	}
}
