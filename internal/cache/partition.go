package cache

// Partition naming. Exactly two partitions are live at a time, one for
// static shell assets and one for dynamic API data; the version is
// encoded in the name and rotation deletes everything else.

// StaticPartition returns the static-assets partition name for a version.
func StaticPartition(version string) string {
	return "static-" + version
}

// DynamicPartition returns the dynamic-data partition name for a version.
func DynamicPartition(version string) string {
	return "dynamic-" + version
}

// Key derives the request identity a snapshot is stored under.
func Key(method, url string) string {
	return method + " " + url
}
