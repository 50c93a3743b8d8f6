package types

import "time"

type DeviceStatus string

const (
	DeviceOnline      DeviceStatus = "online"
	DeviceOffline     DeviceStatus = "offline"
	DeviceMaintenance DeviceStatus = "maintenance"
)

// Device is an RFID reader.
type Device struct {
	DeviceID      string       `json:"device_id"`
	DisplayName   string       `json:"display_name"`
	Location      string       `json:"location"`
	Status        DeviceStatus `json:"status"`
	LastHeartbeat *time.Time   `json:"last_heartbeat"`
}

// EffectiveStatus downgrades an "online" device whose last heartbeat is
// older than timeout to offline. A timeout <= 0 trusts the stored status.
func (d Device) EffectiveStatus(now time.Time, timeout time.Duration) DeviceStatus {
	if d.Status != DeviceOnline || timeout <= 0 {
		return d.Status
	}
	if d.LastHeartbeat == nil || now.Sub(*d.LastHeartbeat) > timeout {
		return DeviceOffline
	}
	return DeviceOnline
}

// Badge maps a card UID to the employee it was issued to.
type Badge struct {
	CardUID      string `json:"card_uid"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Department   string `json:"department,omitempty"`
	Active       bool   `json:"active"`
}
