package binary

import (
	"fmt"

	"github.com/wasmine-go/wasmine/api"
	"github.com/wasmine-go/wasmine/internal/reader"
)

func decodeValueType(r *reader.Reader) (api.ValueType, error) {
	b, err := r.Byte()
	if err != nil {
		return 0, err
	}
	switch b {
	case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64,
		api.ValueTypeFuncref, api.ValueTypeExternref:
		return b, nil
	default:
		return 0, fmt.Errorf("invalid value type %#x at offset %d", b, r.Offset())
	}
}

func decodeRefType(r *reader.Reader) (api.RefType, error) {
	b, err := r.Byte()
	if err != nil {
		return 0, err
	}
	switch b {
	case api.ValueTypeFuncref:
		return api.RefTypeFuncref, nil
	case api.ValueTypeExternref:
		return api.RefTypeExternref, nil
	default:
		return 0, fmt.Errorf("invalid reference type %#x at offset %d", b, r.Offset())
	}
}
