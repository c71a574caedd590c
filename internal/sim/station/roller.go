package station

// roller derives contract draws from the seed, the tick and the draw index,
// so a replay from a snapshot repeats them without saving generator state.
type roller struct {
	seed int64
	tick uint64
	n    uint64
}

func (r *roller) reset(tick uint64) {
	r.tick = tick
	r.n = 0
}

// Float64 returns a value in [0,1).
func (r *roller) Float64() float64 {
	v := uint64(r.seed) ^ (r.tick * 0x9e3779b97f4a7c15) ^ (r.n * 0xbf58476d1ce4e5b9)
	r.n++
	return float64(mix64(v)>>11) / (1 << 53)
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
