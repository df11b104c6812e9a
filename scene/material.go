package scene

import (
	"github.com/cockroachdb/errors"
)

// MaterialType selects the geometry pipeline a mesh is drawn with.
type MaterialType uint8

const (
	// MaterialOpaque writes every covered fragment.
	MaterialOpaque MaterialType = iota
	// MaterialMasked discards fragments whose albedo alpha is below 0.5.
	MaterialMasked
)

func (t MaterialType) String() string {
	switch t {
	case MaterialOpaque:
		return "opaque"
	case MaterialMasked:
		return "masked"
	}
	return "unknown"
}

func (t MaterialType) MarshalText() ([]byte, error) {
	if t > MaterialMasked {
		return nil, errors.Newf("invalid material type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *MaterialType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "opaque":
		*t = MaterialOpaque
	case "masked":
		*t = MaterialMasked
	default:
		return errors.Newf("unknown material type %q (want opaque or masked)", text)
	}
	return nil
}

// Material is the decoded texture set for one material. Empty slots of the
// description are filled with 1x1 defaults so every material binds four images.
type Material struct {
	Name               string
	Type               MaterialType
	Albedo             *Image
	Normal             *Image
	RoughnessMetalness *Image
	AO                 *Image
}

// Default slot contents: white albedo, flat normal, rough dielectric, unoccluded.
func defaultAlbedo() *Image    { return SolidImage("default-albedo", 255, 255, 255, 255) }
func defaultNormal() *Image    { return SolidImage("default-normal", 128, 128, 255, 255) }
func defaultRoughness() *Image { return SolidImage("default-roughness", 0, 255, 0, 255) }
func defaultAO() *Image        { return SolidImage("default-ao", 255, 255, 255, 255) }
