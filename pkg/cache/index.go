package cache

// touchKey moves key to the most recently used end of keys, adding it if absent.
func touchKey(keys []string, key string) []string {
	out := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return append(out, key)
}

// removeKey drops key from keys, keeping order.
func removeKey(keys []string, key string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

// trimKeys splits keys into the max most recently used ones and the rest,
// least recently used first.
func trimKeys(keys []string, max int) (kept, evicted []string) {
	if max <= 0 || len(keys) <= max {
		return keys, nil
	}
	cut := len(keys) - max
	return keys[cut:], keys[:cut]
}
