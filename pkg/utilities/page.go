package utilities

// PageNumber returns the 1-based page for an offset/limit pair.
func PageNumber(skip, limit int) int {
	if limit <= 0 {
		return 1
	}
	return skip/limit + 1
}
