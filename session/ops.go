package session

// Trigger, Clear, Remote, Local, Lock, Unlock and Abort each delegate to
// the backend's IOOperation with the canonical operation code (spec.md
// §4.D). Backends that don't support an operation (e.g. locking on
// serial/socket/usbtmc) fail with errs.LockingNotSupported or
// errs.OperationUnsupported from inside IOOperation.

func (s *Session) Trigger() error { return s.backend.IOOperation(OpTrigger, 0) }
func (s *Session) Clear() error   { return s.backend.IOOperation(OpClear, 0) }
func (s *Session) Remote() error  { return s.backend.IOOperation(OpRemote, 0) }
func (s *Session) Local() error   { return s.backend.IOOperation(OpLocal, 0) }
func (s *Session) Lock() error    { return s.backend.IOOperation(OpLock, 0) }
func (s *Session) Unlock() error  { return s.backend.IOOperation(OpUnlock, 0) }
func (s *Session) Abort() error   { return s.backend.IOOperation(OpAbort, 0) }

// ReadSTB reads the instrument's IEEE 488.2 status byte.
func (s *Session) ReadSTB() (uint8, error) {
	v, err := s.GetAttribute(AttrStatusByte)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}
