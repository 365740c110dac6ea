package userlist

// DefaultOverscan is the number of rows materialised beyond each edge of the
// viewport.
const DefaultOverscan = 3

// Window is the range of a fixed-row-height list materialised for one scroll
// offset. Rows [Start, Stop) are rendered.
type Window struct {
	Start       int
	Stop        int
	Offset      int
	TotalHeight int
}

// ComputeWindow returns the rows to render for a list of count rows of
// itemSize inside a viewport of height scrolled to offset. offset is clamped
// to the scrollable range.
func ComputeWindow(count, itemSize, height, offset, overscan int) Window {
	if count <= 0 || itemSize <= 0 || height <= 0 {
		return Window{}
	}
	if overscan < 0 {
		overscan = 0
	}
	total := count * itemSize
	offset = clamp(offset, 0, max(total-height, 0))

	start := offset/itemSize - overscan
	stop := (offset+height+itemSize-1)/itemSize + overscan
	return Window{
		Start:       max(start, 0),
		Stop:        min(stop, count),
		Offset:      offset,
		TotalHeight: total,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
