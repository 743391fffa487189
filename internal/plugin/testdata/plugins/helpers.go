package helpers

// Helper is not an entry point.
func Helper() string { return "nothing to attach" }
