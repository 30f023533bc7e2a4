package entities

import (
	"bytes"
	"encoding/json"

	"github.com/jacentio/refguard/dao"
)

// decodePatch strictly decodes raw into the patch type P.
func decodePatch[T any, P dao.Patcher[T]](raw []byte) (dao.Patcher[T], error) {
	var p P
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return p, nil
}

func set[V any](dst *V, src *V) {
	if src != nil {
		*dst = *src
	}
}
