package drive

// Range constrains a read or write stream to a byte window. All three
// fields are optional; the Has* booleans distinguish "unset" from zero.
//
// When both End and Length are supplied, Length wins. End is the offset
// one past the last wanted byte, so an End-only range reads End-Start
// bytes. The CLI performs no Start<=End validation; Resolve clamps here
// instead, making the stream constructor authoritative.
type Range struct {
	Start  int64
	End    int64
	Length int64

	HasStart  bool
	HasEnd    bool
	HasLength bool
}

// IsZero reports whether no constraint was supplied.
func (r Range) IsZero() bool {
	return !r.HasStart && !r.HasEnd && !r.HasLength
}

// Offset returns the effective start offset.
func (r Range) Offset() int64 {
	if r.HasStart && r.Start > 0 {
		return r.Start
	}

	return 0
}

// Resolve computes the effective (offset, count) window against a stream
// of the given size. Precedence: Length beats End. The window is clamped
// to [0, size]; a start past the end or an inverted window resolves to a
// zero-byte read rather than an error.
func (r Range) Resolve(size int64) (offset, count int64) {
	offset = r.Offset()
	if offset > size {
		offset = size
	}

	switch {
	case r.HasLength:
		count = r.Length
	case r.HasEnd:
		count = r.End - offset
	default:
		count = size - offset
	}

	if count < 0 {
		count = 0
	}

	if remaining := size - offset; count > remaining {
		count = remaining
	}

	return offset, count
}
