// Package kernel holds identifier types shared across modules.
package kernel

// DeviceID identifies a field device. Devices authenticate with a token
// bound to this id; it is opaque to the engine.
type DeviceID string

func NewDeviceID(id string) DeviceID { return DeviceID(id) }
func (d DeviceID) String() string    { return string(d) }
func (d DeviceID) IsEmpty() bool     { return string(d) == "" }
