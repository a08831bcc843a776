//go:build !linux

package vtrack

import "errors"

var errAffinityUnsupported = errors.New("cpu affinity is only supported on linux")

// SetCPUAffinity is unsupported outside linux, an empty core list is a no-op
func SetCPUAffinity(cores []int) error {
	if len(cores) == 0 {
		return nil
	}
	return errAffinityUnsupported
}

// GetCPUAffinity is unsupported outside linux
func GetCPUAffinity() ([]int, error) {
	return nil, errAffinityUnsupported
}
