package types

type HeartbeatRequest struct {
	DeviceID        string `json:"device_id"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	UptimeSeconds   uint64 `json:"uptime_s,omitempty"`
	RSSIDbm         *int   `json:"rssi_dbm,omitempty"`
	IP              string `json:"ip,omitempty"`
}

type HeartbeatResponse struct {
	OK         bool   `json:"ok"`
	Known      bool   `json:"known"`
	DeviceID   string `json:"device_id"`
	Status     string `json:"status,omitempty"`
	ServerTime string `json:"server_time"`
}

type ScanRequest struct {
	DeviceID      string `json:"device_id"`
	CardUID       string `json:"card_uid"`
	EventType     string `json:"event_type"`
	ScanTimestamp string `json:"scan_timestamp,omitempty"` // RFC3339; server time when empty
}

type ScanResponse struct {
	OK         bool   `json:"ok"`
	SequenceID int64  `json:"sequence_id,omitempty"`
	HashChain  string `json:"hash_chain,omitempty"`
	Reason     string `json:"reason,omitempty"`
	ServerTime string `json:"server_time"`
}
