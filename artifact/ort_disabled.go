//go:build !ORT && !ALL

package artifact

import "errors"

// OpenORT requires the ORT build tag.
func OpenORT(_ string) (Handle, error) {
	return nil, errors.New("onnxruntime support is not compiled in; rebuild with -tags ORT")
}
