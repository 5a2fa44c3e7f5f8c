package pkg

// Contains check source have target
func Contains(slice []string, val string) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}

// AppendIfNotExists append val when slice does not contain it
func AppendIfNotExists(slice []string, val string) []string {
	if Contains(slice, val) {
		return slice
	}
	return append(slice, val)
}
