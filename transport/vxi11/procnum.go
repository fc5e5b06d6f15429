package vxi11

// DEVICE_CORE and DEVICE_ASYNC ONC-RPC program/version/procedure
// numbers, as defined by the VXI-11 specification (spec.md §4.H).
const (
	programCore  = 0x0607AF
	programAsync = 0x0607B0
	rpcVersion   = 1

	procCreateLink      = 10
	procDeviceWrite     = 11
	procDeviceRead      = 12
	procDeviceReadSTB   = 13
	procDeviceTrigger   = 14
	procDeviceClear     = 15
	procDeviceRemote    = 16
	procDeviceLocal     = 17
	procDeviceLock      = 18
	procDeviceUnlock    = 19
	procDeviceEnableSRQ = 20
	procDeviceDoCmd     = 22
	procDestroyLink     = 23
	procCreateIntrChan  = 25
	procDestroyIntrChan = 26
	procDeviceAbort     = 1 // DEVICE_ASYNC program, proc 1
)

// device_write flag bits (spec.md §4.H write protocol).
const (
	flagWaitLock       = 1 << 0
	flagEndIndicator   = 1 << 3
	flagTermCharSet    = 1 << 7
)

const defaultDeviceFlags = 0
