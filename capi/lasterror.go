package capi

// LastErrorLength returns the byte length of the last recorded error
// message, or 0 when nothing has failed in this session yet. Successful
// operations do not clear it.
func (s *Session) LastErrorLength() int {
	return s.errs.Length()
}

// LastErrorMessage copies the last error message into buf and returns the
// number of bytes written. It returns -1, writing nothing, when there is
// no message or buf is shorter than LastErrorLength.
func (s *Session) LastErrorMessage(buf []byte) int {
	return s.errs.CopyInto(buf)
}
