package crawler

// Dedupe keeps the first item for every key and preserves input order.
// The input slice is not modified.
func Dedupe[T any](items []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := key(item)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

// RecordTitle is the dedupe key for source records.
func RecordTitle(r SourceRecord) string {
	return r.Title
}
