package wayland

type ShmFormat uint32

// Every compositor supports these two. Other codes only show up through
// wl_shm.format events.
const (
	ShmFormatArgb8888 ShmFormat = 0 // 32-bit ARGB format, [31:0] A:R:G:B 8:8:8:8 little endian
	ShmFormatXrgb8888 ShmFormat = 1 // 32-bit RGB format, [31:0] x:R:G:B 8:8:8:8 little endian
)
