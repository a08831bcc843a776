//go:build linux

package vtrack

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// SetCPUAffinity pins the process to the given CPU cores, eg: []int{4,5,6,7}
// to keep inference on the fast cores of a big.LITTLE board
func SetCPUAffinity(cores []int) error {

	if len(cores) == 0 {
		return nil
	}

	var set unix.CPUSet
	set.Zero()

	for _, core := range cores {
		if core < 0 || core >= runtime.NumCPU() {
			return fmt.Errorf("cpu core %d out of range 0-%d", core, runtime.NumCPU()-1)
		}
		set.Set(core)
	}

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}

// GetCPUAffinity returns the CPU cores the process may run on
func GetCPUAffinity() ([]int, error) {

	var set unix.CPUSet

	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("failed to get CPU affinity: %w", err)
	}

	var cores []int

	for i := 0; i < runtime.NumCPU(); i++ {
		if set.IsSet(i) {
			cores = append(cores, i)
		}
	}

	return cores, nil
}
