package pointer

// String returns a pointer to the provided string value
func String(value string) *string {
	return &value
}

// StringIfValid returns a pointer to the value if it's valid, otherwise nil
func StringIfValid(valid bool, value string) *string {
	if valid {
		return &value
	}
	return nil
}

// Uint64 returns a pointer to the provided uint64 value
func Uint64(value uint64) *uint64 {
	return &value
}

// Uint64OrDefault returns the pointer if not nil, otherwise the default value
func Uint64OrDefault(value *uint64, defaultValue uint64) *uint64 {
	if value != nil {
		return value
	}
	return &defaultValue
}

// Uint64IfValid returns a pointer to the value if it's valid, otherwise nil
func Uint64IfValid(valid bool, value uint64) *uint64 {
	if valid {
		return &value
	}
	return nil
}
