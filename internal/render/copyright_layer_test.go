package render

import (
	"context"
	"image"
	"testing"
)

func TestCopyrightLayerDrawsBottomRight(t *testing.T) {
	layer := NewCopyrightLayer("© OpenStreetMap contributors")
	v := testView(t, testBox, 6, 300, 100)
	dst := image.NewRGBA(image.Rect(0, 0, 300, 100))

	if err := layer.Render(context.Background(), v, dst, &nopReporter{}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := dst.RGBAAt(298, 98); got.A == 0 {
		t.Error("attribution box not drawn")
	}
	if got := dst.RGBAAt(2, 2); got.A != 0 {
		t.Errorf("top-left = %v, want untouched", got)
	}
	if !layer.Capabilities().ScreenFixed {
		t.Error("attribution must be screen fixed")
	}
}
