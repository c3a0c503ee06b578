package core

// CloneMap returns a shallow copy of a string-keyed map. Nil input yields nil.
func CloneMap[V any](src map[string]V) map[string]V {
	if src == nil {
		return nil
	}
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// CloneSlice returns a copy of the given slice. Nil input yields nil.
func CloneSlice[T any](src []T) []T {
	if src == nil {
		return nil
	}
	dst := make([]T, len(src))
	copy(dst, src)
	return dst
}
