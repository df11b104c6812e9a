package vulkan

import (
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type Instance struct {
	Handle     vk.Instance
	debug      vk.DebugReportCallback
	Validation bool
	log        *slog.Logger
}

type InstanceConfig struct {
	AppName string
	// Validation enables the Khronos validation layer and the debug report
	// callback. It falls back to running without them when the layer is
	// not installed.
	Validation bool
	// Extensions are the instance extensions the window system requires.
	Extensions []string
	Logger     *slog.Logger
}

func NewInstance(config InstanceConfig) (*Instance, error) {
	log := loggerOrDiscard(config.Logger)

	extensions := make([]string, 0, len(config.Extensions)+1)
	for _, ext := range config.Extensions {
		extensions = append(extensions, cstr(ext))
	}

	validation := config.Validation
	if validation && !hasInstanceLayer(validationLayer) {
		log.Warn("validation layer requested but not available", "layer", validationLayer)
		validation = false
	}
	var layers []string
	if validation {
		layers = append(layers, cstr(validationLayer))
		extensions = append(extensions, cstr(vk.ExtDebugReportExtensionName))
	}

	createInfo := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			PApplicationName:   cstr(config.AppName),
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PEngineName:        cstr("deferred-engine"),
			EngineVersion:      vk.MakeVersion(1, 0, 0),
			ApiVersion:         vk.MakeVersion(1, 2, 0),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var handle vk.Instance
	if err := Check(vk.CreateInstance(&createInfo, nil, &handle), "vkCreateInstance"); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(handle); err != nil {
		vk.DestroyInstance(handle, nil)
		return nil, errors.Wrap(err, "load instance entry points")
	}

	inst := &Instance{Handle: handle, Validation: validation, log: log}
	if validation {
		dbgInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: inst.debugReport,
		}
		if err := Check(vk.CreateDebugReportCallback(handle, &dbgInfo, nil, &inst.debug), "vkCreateDebugReportCallback"); err != nil {
			log.Warn("debug report callback unavailable", "err", err)
		}
	}
	return inst, nil
}

func (i *Instance) debugReport(flags vk.DebugReportFlags, _ vk.DebugReportObjectType,
	_ uint64, _ uint64, code int32, layer string, message string, _ unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		i.log.Error("vulkan validation", "layer", layer, "code", code, "msg", message)
	default:
		i.log.Warn("vulkan validation", "layer", layer, "code", code, "msg", message)
	}
	return vk.Bool32(vk.False)
}

func (i *Instance) Destroy() {
	if i.Handle == nil {
		return
	}
	if i.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(i.Handle, i.debug, nil)
	}
	vk.DestroyInstance(i.Handle, nil)
	i.Handle = nil
}

func hasInstanceLayer(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	props := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, props) != vk.Success {
		return false
	}
	for _, p := range props {
		p.Deref()
		if vk.ToString(p.LayerName[:]) == name {
			return true
		}
	}
	return false
}

// cstr null-terminates s for the binding's string fields.
func cstr(s string) string {
	if len(s) > 0 && s[len(s)-1] == 0 {
		return s
	}
	return s + "\x00"
}
