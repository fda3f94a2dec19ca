package openimc

import "strconv"

// metadata accessors follow the `(value, found)` idiom: an absent key and
// an unparseable value are both reported as not found, so callers fall
// back or recover uniformly.

func strFromMetadata(metadata map[string]string, key string) (string, bool) {
	val, found := metadata[key]
	return val, found
}

func intFromMetadata(metadata map[string]string, key string) (int, bool) {
	valStr, found := metadata[key]
	if !found {
		return 0, false
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, false
	}
	return val, true
}

func int64FromMetadata(metadata map[string]string, key string) (int64, bool) {
	valStr, found := metadata[key]
	if !found {
		return 0, false
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

func floatFromMetadata(metadata map[string]string, key string) (float64, bool) {
	valStr, found := metadata[key]
	if !found {
		return 0, false
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}
