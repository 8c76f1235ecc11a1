package extract

// mergePages folds a page's answers into the accumulated form result. Later
// pages win for keys they both populate; nulls never overwrite values. The
// conflict policy is last-write-wins, matching page order.
func mergePages(acc, page map[string]any) map[string]any {
	if acc == nil {
		acc = make(map[string]any, len(page))
	}
	for key, value := range page {
		if value == nil {
			if _, exists := acc[key]; !exists {
				acc[key] = nil
			}
			continue
		}
		acc[key] = value
	}
	return acc
}
