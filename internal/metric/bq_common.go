package metric

// packSignWords packs the sign of each scalar (positive ⇒ 1, else 0) into
// 64-bit words, mirroring vector.BinaryQuantizedCodec's on-disk layout so
// in-flight f32 centroids used during split construction agree bit for
// bit with values already written to storage.
func packSignWords(v []float32) []uint64 {
	words := make([]uint64, (len(v)+63)/64)
	for i, f := range v {
		if f > 0 {
			words[i/64] |= 1 << uint(i%64)
		}
	}
	return words
}
