package types

// Void is the empty value used as a set member placeholder.
type Void = struct{}

var NULL Void

// noCopy may be embedded in structs which must not be copied after first use.
// See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
