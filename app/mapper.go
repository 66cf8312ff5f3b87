package app

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ispbillingai/acs-sub000/common"
	"github.com/ispbillingai/acs-sub000/common/cwmp"
	"github.com/ispbillingai/acs-sub000/common/zaplog/log"
	"github.com/ispbillingai/acs-sub000/models"
)

// columnRule maps a parameter name onto one registry column. A rule
// matches when every `all` fragment is present and, when `any` is
// non-empty, at least one of those is too. Rules are checked in order and
// the first match wins for a given observation; later observations
// targeting the same column overwrite earlier ones, so processing stays
// deterministic in received order.
type columnRule struct {
	column string
	all    []string
	any    []string
}

var columnRules = []columnRule{
	{column: "external_ip", all: []string{"ExternalIPAddress"}},
	{column: "wan_username", all: []string{"WANPPPConnection.", ".Username"}},
	// wifi_enabled must precede ssid: the TR-181 enable path
	// Device.WiFi.SSID.1.Enable also contains ".SSID".
	{column: "wifi_enabled", any: []string{"WLANConfiguration.1.Enable", "Device.WiFi.SSID.1.Enable"}},
	{column: "ssid", all: []string{".SSID"}},
	{column: "software_version", all: []string{"SoftwareVersion"}},
	{column: "hardware_version", all: []string{"HardwareVersion"}},
	{column: "model_name", all: []string{"ModelName"}},
	{column: "connection_request_url", all: []string{"ConnectionRequestURL"}},
	{column: "uptime", all: []string{"DeviceInfo.UpTime"}},
	// Optical power, standard and vendor paths (ZTE/Huawei PON, GPON and
	// EPON interface variants all end in the same fragment).
	{column: "rx_power", any: []string{"RXPower", "RxPower"}},
	{column: "tx_power", any: []string{"TXPower", "TxPower"}},
}

func (r columnRule) matches(name string) bool {
	for _, frag := range r.all {
		if !strings.Contains(name, frag) {
			return false
		}
	}
	if len(r.any) == 0 {
		return true
	}
	for _, frag := range r.any {
		if strings.Contains(name, frag) {
			return true
		}
	}
	return false
}

// hostAccum is a partial connected-host record collected from
// Hosts.Host.{n}.{Property} observations.
type hostAccum struct {
	Hostname      string
	IPAddress     string
	MACAddress    string
	InterfaceType string
}

// MapResult reports what a parameter application touched.
type MapResult struct {
	// HostCount is the reported Hosts.HostNumberOfEntries, when present.
	HostCount *int
	// Columns is the registry update that was attempted.
	Columns map[string]interface{}
	// HostsReported is the number of host-table entries in the set.
	HostsReported int
}

const hostMarker = "Hosts.Host."

// ApplyParams maps reported (name, value) pairs onto registry columns and
// connected-host rows. A failing column update is logged and does not
// block host reconciliation.
func (a *Application) ApplyParams(sn string, observations []cwmp.ParameterValue) (*MapResult, error) {
	dev, err := a.GetDeviceBySn(sn)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	hosts := map[int]*hostAccum{}
	var hostCount *int

	for _, obs := range observations {
		if strings.Contains(obs.Name, "HostNumberOfEntries") {
			if n, err := strconv.Atoi(strings.TrimSpace(obs.Value)); err == nil {
				count := n
				hostCount = &count
			}
			continue
		}
		if idx, prop, ok := parseHostParam(obs.Name); ok {
			rec, exists := hosts[idx]
			if !exists {
				rec = &hostAccum{}
				hosts[idx] = rec
			}
			switch prop {
			case "HostName":
				rec.Hostname = obs.Value
			case "IPAddress":
				rec.IPAddress = obs.Value
			case "MACAddress":
				rec.MACAddress = obs.Value
			case "InterfaceType":
				rec.InterfaceType = obs.Value
			}
			continue
		}
		for _, rule := range columnRules {
			if rule.matches(obs.Name) {
				updates[rule.column] = convertColumn(rule.column, obs.Value)
				break
			}
		}
	}

	result := &MapResult{HostCount: hostCount, Columns: updates, HostsReported: len(hosts)}

	if len(updates) > 0 {
		err := a.gormDB.Model(&models.Device{}).Where("id = ?", dev.ID).Updates(updates).Error
		if err != nil {
			// Partial-failure tolerant: host reconciliation still runs.
			log.Error2("registry update failed",
				zap.String("namespace", "cwmp"),
				zap.String("sn", sn),
				zap.Error(err))
		}
	}

	if len(hosts) > 0 || hostCount != nil {
		if err := a.reconcileHosts(dev, hosts, hostCount); err != nil {
			return result, err
		}
	}

	a.saveParamAudit(sn, observations)
	return result, nil
}

// parseHostParam splits "...Hosts.Host.{n}.{Property}" observations.
func parseHostParam(name string) (int, string, bool) {
	pos := strings.Index(name, hostMarker)
	if pos < 0 {
		return 0, "", false
	}
	rest := name[pos+len(hostMarker):]
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	idx, err := strconv.Atoi(parts[0])
	if err != nil || idx <= 0 {
		return 0, "", false
	}
	return idx, parts[1], true
}

func convertColumn(column, value string) interface{} {
	if column == "uptime" {
		n, _ := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		return n
	}
	return value
}

// reconcileHosts applies the reported host set to the stored one: a zero
// or shrunken report wipes the stored set first, then every reported host
// upserts by MAC-or-IP and unreported survivors go inactive. The device's
// active-client count is recomputed at the end.
func (a *Application) reconcileHosts(dev *models.Device, hosts map[int]*hostAccum, hostCount *int) error {
	var existing []models.ConnectedHost
	if err := a.gormDB.Where("device_id = ?", dev.ID).Find(&existing).Error; err != nil {
		return err
	}

	if hostCount != nil && (*hostCount == 0 || *hostCount < len(existing)) {
		err := a.gormDB.Where("device_id = ?", dev.ID).Delete(&models.ConnectedHost{}).Error
		if err != nil {
			return err
		}
		existing = nil
	}

	if len(hosts) > 0 {
		now := time.Now()
		seen := map[int64]bool{}

		indexes := make([]int, 0, len(hosts))
		for idx := range hosts {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)

		for _, idx := range indexes {
			rec := hosts[idx]
			if rec.MACAddress == "" && rec.IPAddress == "" {
				continue
			}
			match := matchHost(existing, rec)
			if match != nil {
				match.IsActive = true
				match.LastSeen = now
				if rec.Hostname != "" {
					match.Hostname = rec.Hostname
				}
				if rec.IPAddress != "" {
					match.IPAddress = rec.IPAddress
				}
				if rec.MACAddress != "" {
					match.MACAddress = rec.MACAddress
				}
				if rec.InterfaceType != "" {
					match.InterfaceType = rec.InterfaceType
				}
				if err := a.gormDB.Save(match).Error; err != nil {
					return err
				}
				seen[match.ID] = true
				continue
			}
			row := &models.ConnectedHost{
				DeviceID:      dev.ID,
				IPAddress:     rec.IPAddress,
				MACAddress:    rec.MACAddress,
				Hostname:      rec.Hostname,
				InterfaceType: rec.InterfaceType,
				IsActive:      true,
				LastSeen:      now,
			}
			if err := a.gormDB.Create(row).Error; err != nil {
				return err
			}
		}

		for i := range existing {
			if !seen[existing[i].ID] && existing[i].IsActive {
				err := a.gormDB.Model(&models.ConnectedHost{}).
					Where("id = ?", existing[i].ID).
					Update("is_active", false).Error
				if err != nil {
					return err
				}
			}
		}
	}

	var active int64
	err := a.gormDB.Model(&models.ConnectedHost{}).
		Where("device_id = ? AND is_active = ?", dev.ID, true).
		Count(&active).Error
	if err != nil {
		return err
	}
	return a.gormDB.Model(&models.Device{}).Where("id = ?", dev.ID).
		Update("client_count", active).Error
}

func matchHost(existing []models.ConnectedHost, rec *hostAccum) *models.ConnectedHost {
	for i := range existing {
		e := &existing[i]
		if rec.MACAddress != "" && e.MACAddress != "" &&
			strings.EqualFold(rec.MACAddress, e.MACAddress) {
			return e
		}
		if rec.IPAddress != "" && e.IPAddress != "" && rec.IPAddress == e.IPAddress {
			return e
		}
	}
	return nil
}

// saveParamAudit keeps the raw reported parameters, one row per (sn,
// name), overwritten in place on every report.
func (a *Application) saveParamAudit(sn string, observations []cwmp.ParameterValue) {
	if len(observations) == 0 {
		return
	}
	now := time.Now()
	rows := make([]models.DeviceParam, 0, len(observations))
	seen := map[string]bool{}
	for _, obs := range observations {
		id := common.Md5Hash(sn + obs.Name)
		if seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, models.DeviceParam{
			ID:        id,
			Sn:        sn,
			Name:      obs.Name,
			Value:     obs.Value,
			UpdatedAt: now,
		})
	}
	if err := a.gormDB.Save(&rows).Error; err != nil {
		log.Errorf("param audit save failed for %s: %s", sn, err.Error())
	}
}
