package usecase

import "image"

// CropPlan returns the two crop rectangles applied to a WxH sensor frame.
// Frames arrive rotated relative to the viewfinder, so dropping the
// viewfinder's lower half keeps the left half of the frame. The second crop
// narrows that region to roughly 3:2.
func CropPlan(width int, height int) (first image.Rectangle, second image.Rectangle) {
	if width <= 0 || height <= 0 {
		return image.Rectangle{}, image.Rectangle{}
	}
	half := width / 2
	first = image.Rect(0, 0, half, height)
	second = image.Rect(0, 0, min(height*3/2, half), height)
	return first, second
}
