package service

// FilterNew 返回 key 不在 existing 中的候选项，保持原有顺序；
// 候选项内部 key 重复时只保留第一个
func FilterNew[T any, K comparable](candidates []T, key func(T) K, existing []K) []T {
	seen := make(map[K]struct{}, len(existing)+len(candidates))
	for _, k := range existing {
		seen[k] = struct{}{}
	}

	result := make([]T, 0, len(candidates))
	for _, c := range candidates {
		k := key(c)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, c)
	}
	return result
}
