package netstack

import "sort"

// span is a half-open byte interval [start, end) held by the reassembler
// while it waits for the gap before it to close.
type span struct {
	start uint64
	end   uint64
	data  []byte
}

// StreamReassembler assembles an in-order ByteStream out of arbitrary,
// possibly out-of-order and overlapping (offset, bytes, eof) fragments,
// bounded by the downstream stream's capacity.
type StreamReassembler struct {
	output *ByteStream
	capacity uint64

	firstUnassembled uint64
	unassembled      []span // ordered, disjoint, all start >= firstUnassembled

	haveEOF  bool
	eofIndex uint64
}

// NewStreamReassembler returns a reassembler writing into a freshly created
// ByteStream of the given capacity.
func NewStreamReassembler(capacity uint64) *StreamReassembler {
	return &StreamReassembler{
		output:   NewByteStream(capacity),
		capacity: capacity,
	}
}

// StreamOut returns the downstream byte stream the reassembler writes into.
func (r *StreamReassembler) StreamOut() *ByteStream {
	return r.output
}

// PushSubstring accepts a fragment of the input stream. first_index is the
// stream index of data[0]. eof marks that data is the last fragment (data
// may be empty purely to signal end-of-stream at first_index).
func (r *StreamReassembler) PushSubstring(data []byte, firstIndex uint64, eof bool) {
	if eof {
		idx := firstIndex + uint64(len(data))
		if !r.haveEOF || idx > r.eofIndex {
			r.eofIndex = idx
		}
		r.haveEOF = true
	}

	windowEnd := r.firstUnassembled + (r.capacity - r.output.BufferSize())

	start := firstIndex
	end := firstIndex + uint64(len(data))
	if start < r.firstUnassembled {
		start = r.firstUnassembled
	}
	if end > windowEnd {
		end = windowEnd
	}
	if end > start {
		clipped := data[start-firstIndex : end-firstIndex]
		r.insert(span{start: start, end: end, data: clipped})
	}

	r.flush()

	if r.haveEOF && r.firstUnassembled >= r.eofIndex {
		r.output.EndInput()
	}
}

// insert merges a new span into the disjoint ordered set, de-duplicating
// overlaps with and gaps between adjacent spans.
func (r *StreamReassembler) insert(s span) {
	merged := make([]span, 0, len(r.unassembled)+1)
	inserted := false
	for _, existing := range r.unassembled {
		if existing.end < s.start {
			merged = append(merged, existing)
			continue
		}
		if existing.start > s.end {
			if !inserted {
				merged = append(merged, s)
				inserted = true
			}
			merged = append(merged, existing)
			continue
		}
		// Overlapping or adjacent: merge into s.
		s = mergeSpans(s, existing)
	}
	if !inserted {
		merged = append(merged, s)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].start < merged[j].start })
	r.unassembled = merged
}

// mergeSpans combines two overlapping or touching spans into one, preferring
// a's bytes in the overlap (either side holds identical bytes by protocol
// invariant, since both came from the same stream).
func mergeSpans(a, b span) span {
	start := a.start
	if b.start < start {
		start = b.start
	}
	end := a.end
	if b.end > end {
		end = b.end
	}
	out := make([]byte, end-start)
	copy(out[b.start-start:], b.data)
	copy(out[a.start-start:], a.data)
	return span{start: start, end: end, data: out}
}

// flush writes the contiguous prefix of the unassembled set (if any starts
// at firstUnassembled) into the downstream stream and erases it from the
// window.
func (r *StreamReassembler) flush() {
	for len(r.unassembled) > 0 && r.unassembled[0].start <= r.firstUnassembled {
		s := r.unassembled[0]
		if s.end <= r.firstUnassembled {
			r.unassembled = r.unassembled[1:]
			continue
		}
		offset := r.firstUnassembled - s.start
		n := r.output.Write(s.data[offset:])
		r.firstUnassembled += n
		if n < uint64(len(s.data))-offset {
			// Downstream capacity exhausted; partially consumed span stays.
			r.unassembled[0] = span{start: r.firstUnassembled, end: s.end, data: s.data[offset+n:]}
			return
		}
		r.unassembled = r.unassembled[1:]
	}
}

// UnassembledBytes returns the total number of bytes currently held in the
// out-of-order window.
func (r *StreamReassembler) UnassembledBytes() uint64 {
	var total uint64
	for _, s := range r.unassembled {
		total += s.end - s.start
	}
	return total
}
