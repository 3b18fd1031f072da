package reconstruct

import "image"

// Progress is emitted after each committed placement.
type Progress struct {
	Placement

	Total     int // Tiles in the pool when the run started
	Remaining int // Tiles still unplaced

	// Canvas is a snapshot of the canvas after the commit. It is owned by the
	// receiver; the engine never touches it again.
	Canvas *image.NRGBA
}

// ProgressFunc receives progress notifications on the engine's goroutine. It
// must return quickly: the next round does not start until it does.
type ProgressFunc func(Progress)

// ChannelSink returns a ProgressFunc that forwards notifications to ch without
// blocking. When ch is full the notification is dropped.
func ChannelSink(ch chan<- Progress) ProgressFunc {
	return func(p Progress) {
		select {
		case ch <- p:
		default:
		}
	}
}
