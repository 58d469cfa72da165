package signal

// At returns the i-th element counting from the oldest.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("signal: ring index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Reset empties the ring without releasing storage.
func (r *Ring[T]) Reset() {
	clear(r.buf)
	r.head = 0
	r.count = 0
}

// Samples returns the unprocessed sample log, oldest first.
func (c *Collector) Samples() []Sample {
	out := make([]Sample, 0, c.log.Len())
	for s := range c.log.All() {
		out = append(out, s)
	}
	return out
}
