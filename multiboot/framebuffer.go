package multiboot

// FramebufferType defines the type of the initialized framebuffer.
type FramebufferType uint8

const (
	// FramebufferTypeIndexed specifies a 256-color palette.
	FramebufferTypeIndexed FramebufferType = iota

	// FramebufferTypeRGB specifies direct RGB mode.
	FramebufferTypeRGB

	// FramebufferTypeEGA specifies EGA text mode.
	FramebufferTypeEGA
)

// FramebufferInfo provides information about the initialized framebuffer.
type FramebufferInfo struct {
	// The framebuffer physical address.
	PhysAddr uint64

	// Row pitch in bytes.
	Pitch uint32

	// Width and height in pixels (or characters if Type = FramebufferTypeEGA)
	Width, Height uint32

	// Bits per pixel (non EGA modes only).
	Bpp uint8

	// Framebuffer type.
	Type FramebufferType

	// Component layout; only populated for FramebufferTypeRGB.
	RGB FramebufferRGBColorInfo
}

// Size returns the number of bytes covered by the framebuffer.
func (fb FramebufferInfo) Size() uintptr {
	return uintptr(fb.Pitch) * uintptr(fb.Height)
}

// FramebufferRGBColorInfo describes the order and width of each color component
// for a 15-, 16-, 24- or 32-bit framebuffer.
type FramebufferRGBColorInfo struct {
	// The position and width (in bits) of the red component.
	RedPosition uint8
	RedMaskSize uint8

	// The position and width (in bits) of the green component.
	GreenPosition uint8
	GreenMaskSize uint8

	// The position and width (in bits) of the blue component.
	BluePosition uint8
	BlueMaskSize uint8
}

// Framebuffer returns the framebuffer set up by the boot loader. The second
// result is false if no framebuffer tag is present.
func (i Info) Framebuffer() (FramebufferInfo, bool) {
	var fb FramebufferInfo

	tag, ok := i.findTag(tagFramebufferInfo)
	if !ok || !tag.Contains(0, 22) {
		return fb, false
	}

	fb.PhysAddr, _ = tag.Uint64(0)
	fb.Pitch, _ = tag.Uint32(8)
	fb.Width, _ = tag.Uint32(12)
	fb.Height, _ = tag.Uint32(16)
	fb.Bpp, _ = tag.Uint8(20)
	typ, _ := tag.Uint8(21)
	fb.Type = FramebufferType(typ)

	// The color info block follows a 16-bit reserved field.
	if fb.Type == FramebufferTypeRGB && tag.Contains(24, 6) {
		fb.RGB.RedPosition, _ = tag.Uint8(24)
		fb.RGB.RedMaskSize, _ = tag.Uint8(25)
		fb.RGB.GreenPosition, _ = tag.Uint8(26)
		fb.RGB.GreenMaskSize, _ = tag.Uint8(27)
		fb.RGB.BluePosition, _ = tag.Uint8(28)
		fb.RGB.BlueMaskSize, _ = tag.Uint8(29)
	}

	return fb, true
}
