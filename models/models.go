// Package models holds the persistence surfaces the CWMP engine reads and
// writes. The serial number is the only stable device identity the
// protocol offers, so it is the natural key everywhere.
package models

import "time"

// Device status values derived from contact freshness.
const (
	DeviceOnline  = "online"
	DeviceOffline = "offline"
)

// OnlineWindow is the freshness window for the online/offline derivation.
const OnlineWindow = 300 * time.Second

// Device is the registry row for one CPE.
type Device struct {
	ID              int64  `gorm:"primaryKey" json:"id,string"`
	SerialNumber    string `gorm:"uniqueIndex" json:"serial_number"`
	Manufacturer    string `json:"manufacturer"`
	Oui             string `json:"oui"`
	ProductClass    string `json:"product_class"`
	ModelName       string `json:"model_name"`
	IPAddress       string `json:"ip_address"`
	Status          string `gorm:"index" json:"status"`
	SoftwareVersion string `json:"software_version"`
	HardwareVersion string `json:"hardware_version"`

	// ConnectionRequestURL is the CPE-side endpoint for ACS-initiated
	// connection requests.
	ConnectionRequestURL string `json:"connection_request_url"`

	// CurrentTaskID points at the single task being driven for this
	// device; it must reference an in_progress task and is cleared when
	// that task leaves in_progress.
	CurrentTaskID *int64 `gorm:"index" json:"current_task_id"`

	// CycleID/CycleRetries track the open management cycle durably so
	// repeated Informs are counted across processes.
	CycleID      string `json:"cycle_id"`
	CycleRetries int    `json:"cycle_retries"`

	Ssid        string `json:"ssid"`
	WifiEnabled string `json:"wifi_enabled"`
	WanMode     string `json:"wan_mode"`
	WanUsername string `json:"wan_username"`
	ExternalIP  string `json:"external_ip"`
	RxPower     string `json:"rx_power"`
	TxPower     string `json:"tx_power"`
	Uptime      int64  `json:"uptime"`
	ClientCount int    `json:"client_count"`

	LastInform time.Time `json:"last_inform"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Online reports whether the device contacted the ACS within the
// freshness window.
func (d *Device) Online(now time.Time) bool {
	return now.Sub(d.LastInform) <= OnlineWindow
}

// Task types.
const (
	TaskInfo         = "info"
	TaskInfoGroup    = "info_group"
	TaskWifi         = "wifi"
	TaskWan          = "wan"
	TaskReboot       = "reboot"
	TaskHuaweiReboot = "huawei_reboot"
)

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
	TaskCanceled   = "canceled"
)

// DiscoveryTypes are idempotent parameter-fetch tasks that must not be
// queued twice for the same device.
var DiscoveryTypes = []string{TaskInfo, TaskInfoGroup}

// Task is one unit of configuration work owed to a device. Rows are kept
// as history, never deleted.
type Task struct {
	ID        int64     `gorm:"primaryKey" json:"id,string"`
	DeviceID  int64     `gorm:"index" json:"device_id,string"`
	TaskType  string    `gorm:"index" json:"task_type"`
	TaskData  string    `gorm:"type:text" json:"task_data"`
	Status    string    `gorm:"index" json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConnectedHost is a LAN/WiFi client observed behind a device, keyed by
// MAC or IP within the device.
type ConnectedHost struct {
	ID            int64     `gorm:"primaryKey" json:"id,string"`
	DeviceID      int64     `gorm:"index" json:"device_id,string"`
	IPAddress     string    `json:"ip_address"`
	MACAddress    string    `json:"mac_address"`
	Hostname      string    `json:"hostname"`
	InterfaceType string    `json:"interface_type"`
	IsActive      bool      `gorm:"index" json:"is_active"`
	LastSeen      time.Time `json:"last_seen"`
}

// DeviceParam is a raw reported parameter kept for audit. ID is
// md5(sn+name) so repeated reports overwrite in place.
type DeviceParam struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Sn        string    `gorm:"index" json:"sn"`
	Name      string    `gorm:"index" json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
