package kdi

import "golang.org/x/sys/unix"

var (
	OpGetDeviceInfo     = uintptr(opGetDeviceInfo)
	OpQueryMappings     = uintptr(opQueryMappings)
	OpAllocateDmaBuffer = uintptr(opAllocateDmaBuffer)
	OpAllocateTlb       = uintptr(opAllocateTlb)
	OpResetDevice       = uintptr(opResetDevice)
)

// MockRawSyscall swaps the package's syscall trap, mirroring
// cmd/snap-gpio-helper's MockUnixSyscall.
func MockRawSyscall(f func(trap, a1, a2, a3 uintptr) (uintptr, uintptr, unix.Errno)) (restore func()) {
	old := rawSyscall
	rawSyscall = f
	return func() { rawSyscall = old }
}

func NewTestDevice(index int, fd int) *Device {
	return &Device{Index: index, fd: fd}
}

// MockMmap swaps the mmap/munmap pair MapRegion and UnmapRegion use.
func MockMmap(mmap func(fd int, offset int64, length int, prot int, flags int) ([]byte, error), munmap func([]byte) error) (restore func()) {
	oldMap, oldUnmap := mmapFunc, munmapFunc
	mmapFunc, munmapFunc = mmap, munmap
	return func() {
		mmapFunc, munmapFunc = oldMap, oldUnmap
	}
}
