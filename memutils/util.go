package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uintptr | ~uint64
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// CheckAligned returns an error wrapping AlignmentError if value is not a multiple of alignment.
// alignment must be a power of two.
func CheckAligned[T Number](value T, alignment T, name string) error {
	DebugCheckPow2(alignment, "alignment")

	if value&(alignment-1) != 0 {
		return cerrors.Wrapf(AlignmentError, "%s is %d, which is not a multiple of %d", name, value, alignment)
	}
	return nil
}

func AlignUp[T Number](value T, alignment T) T {
	DebugCheckPow2(alignment, "alignment")
	return (value + alignment - 1) &^ (alignment - 1)
}

func AlignDown[T Number](value T, alignment T) T {
	return value &^ (alignment - 1)
}
