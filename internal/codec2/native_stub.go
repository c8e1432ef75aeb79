//go:build !cgo || !codec2

package codec2

import "fmt"

// Native is a placeholder used when the binary is built without libcodec2.
// Rebuild with CGO_ENABLED=1 and -tags codec2 to link the real codec.
var Native Library = unavailableLibrary{}

type unavailableLibrary struct{}

func (unavailableLibrary) Create(mode Mode) (Engine, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMode, uint8(mode))
	}
	return nil, fmt.Errorf("%w: built without libcodec2 (use -tags codec2)", ErrNativeInitFailure)
}
