package value

// DeepMerge merges src into dst and returns the result. For every key of src:
// when both the existing and incoming values are objects they are merged
// recursively, otherwise the incoming value replaces the existing one. Arrays
// are replaced wholesale. Neither input is mutated.
func DeepMerge(dst, src Value) Value {
	if !dst.IsObject() || !src.IsObject() {
		return src
	}
	fields := make(map[string]Value, len(dst.object)+len(src.object))
	for k, v := range dst.object {
		fields[k] = v
	}
	for k, incoming := range src.object {
		if existing, ok := fields[k]; ok && existing.IsObject() && incoming.IsObject() {
			fields[k] = DeepMerge(existing, incoming)
			continue
		}
		fields[k] = incoming
	}
	return Object(fields)
}
