package depthmap

const (
	pfmMagicColor = "PF"
	pfmMagicGray  = "Pf"
)

const (
	maxVal8  = 255
	maxVal16 = 65535
	// opencvHueMax is the 8-bit OpenCV hue range (half degrees).
	opencvHueMax = 180
)

const (
	defaultNetworkSize     = 384
	defaultNetworkMultiple = 32
)

// DefaultSegmentAlpha is the overlay opacity used for segmentation output.
const DefaultSegmentAlpha = 0.5
