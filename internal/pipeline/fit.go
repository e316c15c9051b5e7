package pipeline

import "image"

// FitRect returns the largest rectangle with the aspect ratio of size that
// fits inside bounds, centred. It returns an empty rectangle for empty input.
func FitRect(size image.Point, bounds image.Rectangle) image.Rectangle {
	bw, bh := bounds.Dx(), bounds.Dy()
	if size.X <= 0 || size.Y <= 0 || bw <= 0 || bh <= 0 {
		return image.Rectangle{}
	}

	w, h := bw, bw*size.Y/size.X
	if h > bh {
		w, h = bh*size.X/size.Y, bh
	}
	x := bounds.Min.X + (bw-w)/2
	y := bounds.Min.Y + (bh-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// UnwrapRect returns where the unwrap strip is drawn. The strip is twice
// as wide as it is tall and is shown after a quarter turn, so the rect has
// a 1:2 aspect ratio.
func UnwrapRect(bounds image.Rectangle) image.Rectangle {
	return FitRect(image.Pt(1, 2), bounds)
}
