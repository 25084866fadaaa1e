package keymanager

import "sync/atomic"

// InterceptionSwitch toggles a content-interception layer (typically an
// encrypting file proxy) that must not see key writes, otherwise the stored
// key would itself be encrypted again.
//
// The Manager disables the switch before a key write and enables it afterwards,
// unconditionally. It does not save and restore previous values, so a switch
// must not be shared by concurrent requests.
type InterceptionSwitch interface {
	SetEnabled(enabled bool)
}

// ProxyFlag is a process-wide InterceptionSwitch. The zero value is enabled.
type ProxyFlag struct {
	disabled atomic.Bool
}

// Enabled reports whether interception is active.
func (f *ProxyFlag) Enabled() bool {
	return !f.disabled.Load()
}

// SetEnabled turns interception on or off.
func (f *ProxyFlag) SetEnabled(enabled bool) {
	f.disabled.Store(!enabled)
}

var _ InterceptionSwitch = (*ProxyFlag)(nil)

type noopSwitch struct{}

func (noopSwitch) SetEnabled(bool) {}

// suspend disables interception and returns the function that re-enables it.
// Use as: defer suspend(sw)()
func suspend(sw InterceptionSwitch) func() {
	sw.SetEnabled(false)
	return func() { sw.SetEnabled(true) }
}
