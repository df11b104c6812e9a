package vulkan

import (
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

const spirvMagic = 0x07230203

// DecodeSPIRV validates a SPIR-V binary and returns it as words.
func DecodeSPIRV(data []byte) ([]uint32, error) {
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, errors.Newf("invalid SPIR-V size %d", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, errors.Newf("invalid SPIR-V magic %#08x", words[0])
	}
	return words, nil
}

// LoadShaderModule reads a SPIR-V file and creates a shader module.
func LoadShaderModule(d *Device, path string) (vk.ShaderModule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vk.NullShaderModule, errors.Wrapf(err, "read shader %s", path)
	}
	code, err := DecodeSPIRV(data)
	if err != nil {
		return vk.NullShaderModule, errors.Wrapf(err, "shader %s", path)
	}
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(d.Device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}, nil, &module)
	if err := Check(ret, "vkCreateShaderModule"); err != nil {
		return vk.NullShaderModule, errors.Wrapf(err, "shader %s", path)
	}
	return module, nil
}
