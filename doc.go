// Package depthmap provides a pure-Go PFM (Portable Float Map) codec and the depth map
// encoders used to turn monocular depth predictions into PNG rasters.
//
// Inference itself is out of scope: depth and segmentation maps are produced elsewhere and
// handed over as tensors or PFM files. This package reads/writes them, resamples depth to
// the source resolution and renders grayscale, hue-mapped or RGB-packed depth images as well
// as segmentation overlays and masks.
package depthmap
