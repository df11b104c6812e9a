package vulkan

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// QueueKind names the role a queue plays in the frame.
type QueueKind int

const (
	QueueGraphics QueueKind = iota
	QueueCompute
	QueueTransfer
	QueuePresent
)

func (k QueueKind) String() string {
	switch k {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	case QueuePresent:
		return "present"
	}
	return "unknown"
}

// QueueFamily describes one queue family of a physical device.
type QueueFamily struct {
	Index   uint32
	Flags   vk.QueueFlags
	Count   uint32
	Present bool
}

func (f QueueFamily) has(bits vk.QueueFlagBits) bool {
	return f.Flags&vk.QueueFlags(bits) != 0
}

// QueueFamilies holds the family index chosen for each queue role.
type QueueFamilies struct {
	Graphics uint32
	Compute  uint32
	Transfer uint32
	Present  uint32
}

// Unique returns the distinct family indices in role order.
func (q QueueFamilies) Unique() []uint32 {
	var out []uint32
	seen := map[uint32]bool{}
	for _, idx := range []uint32{q.Graphics, q.Compute, q.Transfer, q.Present} {
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out
}

// SelectQueueFamilies picks a family per role. Compute and transfer prefer
// dedicated families so that work on them can overlap graphics; all choices
// are made from the capability flags, never from queue counts.
func SelectQueueFamilies(families []QueueFamily) (QueueFamilies, error) {
	const none = ^uint32(0)
	sel := QueueFamilies{Graphics: none, Compute: none, Transfer: none, Present: none}

	for _, f := range families {
		if f.Count == 0 || !f.has(vk.QueueGraphicsBit) {
			continue
		}
		if sel.Graphics == none {
			sel.Graphics = f.Index
		}
		if f.Present {
			sel.Graphics = f.Index
			sel.Present = f.Index
			break
		}
	}
	if sel.Graphics == none {
		return sel, errors.Wrap(ErrNoSuitableDevice, "no graphics queue family")
	}
	if sel.Present == none {
		for _, f := range families {
			if f.Count > 0 && f.Present {
				sel.Present = f.Index
				break
			}
		}
	}
	if sel.Present == none {
		return sel, errors.Wrap(ErrNoSuitableDevice, "no present queue family")
	}

	for _, f := range families {
		if f.Count > 0 && f.has(vk.QueueComputeBit) && !f.has(vk.QueueGraphicsBit) {
			sel.Compute = f.Index
			break
		}
	}
	if sel.Compute == none {
		sel.Compute = sel.Graphics
	}

	for _, f := range families {
		if f.Count > 0 && f.has(vk.QueueTransferBit) && !f.has(vk.QueueGraphicsBit) && !f.has(vk.QueueComputeBit) {
			sel.Transfer = f.Index
			break
		}
	}
	if sel.Transfer == none {
		sel.Transfer = sel.Compute
	}
	return sel, nil
}

// DeviceCandidate is what device rating looks at.
type DeviceCandidate struct {
	Discrete          bool
	MaxImage2D        uint32
	HasSwapchain      bool
	SamplerAnisotropy bool
	// StorageImageExtendedFormats covers the two-channel float storage
	// image the BRDF bake writes.
	StorageImageExtendedFormats bool
	Families                    []QueueFamily
}

// RateDevice scores a candidate; zero means unusable.
func RateDevice(c DeviceCandidate) uint32 {
	if !c.HasSwapchain || !c.SamplerAnisotropy || !c.StorageImageExtendedFormats {
		return 0
	}
	if _, err := SelectQueueFamilies(c.Families); err != nil {
		return 0
	}
	score := c.MaxImage2D
	if c.Discrete {
		score += 1000
	}
	return score
}

type Device struct {
	PhysicalDevice vk.PhysicalDevice
	Device         vk.Device
	Families       QueueFamilies

	Graphics vk.Queue
	Compute  vk.Queue
	Transfer vk.Queue
	Present  vk.Queue

	Name        string
	Properties  vk.PhysicalDeviceProperties
	Limits      vk.PhysicalDeviceLimits
	MemoryProps vk.PhysicalDeviceMemoryProperties

	log *slog.Logger
}

// NewDevice picks the best physical device able to present to surface and
// creates the logical device with one queue per distinct family.
func NewDevice(inst *Instance, surface vk.Surface, log *slog.Logger) (*Device, error) {
	log = loggerOrDiscard(log)

	var count uint32
	if err := Check(vk.EnumeratePhysicalDevices(inst.Handle, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errors.Wrap(ErrNoSuitableDevice, "no GPUs with Vulkan support")
	}
	gpus := make([]vk.PhysicalDevice, count)
	if err := Check(vk.EnumeratePhysicalDevices(inst.Handle, &count, gpus), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}

	var best vk.PhysicalDevice
	var bestScore uint32
	var bestFamilies []QueueFamily
	for _, gpu := range gpus {
		c := describeDevice(gpu, surface)
		if score := RateDevice(c); score > bestScore {
			best, bestScore, bestFamilies = gpu, score, c.Families
		}
	}
	if best == nil {
		return nil, ErrNoSuitableDevice
	}

	families, err := SelectQueueFamilies(bestFamilies)
	if err != nil {
		return nil, err
	}

	d := &Device{PhysicalDevice: best, Families: families, log: log}
	vk.GetPhysicalDeviceProperties(best, &d.Properties)
	d.Properties.Deref()
	d.Limits = d.Properties.Limits
	d.Limits.Deref()
	d.Name = vk.ToString(d.Properties.DeviceName[:])
	vk.GetPhysicalDeviceMemoryProperties(best, &d.MemoryProps)
	d.MemoryProps.Deref()

	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}
	log.Info("selected GPU", "name", d.Name, "type", deviceTypeName(d.Properties.DeviceType),
		"graphics", families.Graphics, "compute", families.Compute,
		"transfer", families.Transfer, "present", families.Present)
	return d, nil
}

func describeDevice(gpu vk.PhysicalDevice, surface vk.Surface) DeviceCandidate {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()
	props.Limits.Deref()

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(gpu, &features)
	features.Deref()

	var qCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &qCount, nil)
	qProps := make([]vk.QueueFamilyProperties, qCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &qCount, qProps)

	families := make([]QueueFamily, qCount)
	for i := range qProps {
		qProps[i].Deref()
		var present vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(gpu, uint32(i), surface, &present)
		families[i] = QueueFamily{
			Index:   uint32(i),
			Flags:   qProps[i].QueueFlags,
			Count:   qProps[i].QueueCount,
			Present: present.B(),
		}
	}

	return DeviceCandidate{
		Discrete:     props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu,
		MaxImage2D:   props.Limits.MaxImageDimension2D,
		HasSwapchain: hasDeviceExtension(gpu, vk.KhrSwapchainExtensionName),
		Families:     families,
	}.withFeatures(features)
}

// withFeatures copies the optional features rating depends on.
func (c DeviceCandidate) withFeatures(f vk.PhysicalDeviceFeatures) DeviceCandidate {
	c.SamplerAnisotropy = f.SamplerAnisotropy.B()
	c.StorageImageExtendedFormats = f.ShaderStorageImageExtendedFormats.B()
	return c
}

func hasDeviceExtension(gpu vk.PhysicalDevice, name string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil) != vk.Success {
		return false
	}
	exts := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(gpu, "", &count, exts) != vk.Success {
		return false
	}
	for _, e := range exts {
		e.Deref()
		if vk.ToString(e.ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

func (d *Device) createLogicalDevice() error {
	unique := d.Families.Unique()
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(unique))
	for i, family := range unique {
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensions := []string{cstr(vk.KhrSwapchainExtensionName)}
	var dev vk.Device
	ret := vk.CreateDevice(d.PhysicalDevice, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		// Only features RateDevice already required of the device.
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SamplerAnisotropy:                 vk.True,
			ShaderStorageImageExtendedFormats: vk.True,
		}},
	}, nil, &dev)
	if err := Check(ret, "vkCreateDevice"); err != nil {
		return err
	}
	d.Device = dev

	d.Graphics = d.queue(d.Families.Graphics)
	d.Compute = d.queue(d.Families.Compute)
	d.Transfer = d.queue(d.Families.Transfer)
	d.Present = d.queue(d.Families.Present)
	return nil
}

func (d *Device) queue(family uint32) vk.Queue {
	var q vk.Queue
	vk.GetDeviceQueue(d.Device, family, 0, &q)
	return q
}

// Queue returns the queue and family index serving kind.
func (d *Device) Queue(kind QueueKind) (vk.Queue, uint32) {
	switch kind {
	case QueueCompute:
		return d.Compute, d.Families.Compute
	case QueueTransfer:
		return d.Transfer, d.Families.Transfer
	case QueuePresent:
		return d.Present, d.Families.Present
	}
	return d.Graphics, d.Families.Graphics
}

func (d *Device) WaitIdle() error {
	return Check(vk.DeviceWaitIdle(d.Device), "vkDeviceWaitIdle")
}

func (d *Device) Destroy() {
	if d.Device == nil {
		return
	}
	vk.DeviceWaitIdle(d.Device)
	vk.DestroyDevice(d.Device, nil)
	d.Device = nil
}

// MinUniformAlignment is the device's minimum uniform-buffer offset alignment.
func (d *Device) MinUniformAlignment() uint64 {
	a := uint64(d.Limits.MinUniformBufferOffsetAlignment)
	if a == 0 {
		return 1
	}
	return a
}

// MemoryTypes flattens the memory type property flags of the device.
func (d *Device) MemoryTypes() []vk.MemoryPropertyFlags {
	n := d.MemoryProps.MemoryTypeCount
	out := make([]vk.MemoryPropertyFlags, n)
	for i := uint32(0); i < n; i++ {
		d.MemoryProps.MemoryTypes[i].Deref()
		out[i] = d.MemoryProps.MemoryTypes[i].PropertyFlags
	}
	return out
}

// FindMemoryType returns the memory type index for the given requirement
// bits and property flags.
func (d *Device) FindMemoryType(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	return FindMemoryType(d.MemoryTypes(), typeBits, props)
}

func deviceTypeName(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	}
	return "unknown"
}
