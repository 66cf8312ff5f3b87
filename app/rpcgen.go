package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ispbillingai/acs-sub000/common"
	"github.com/ispbillingai/acs-sub000/common/cwmp"
	"github.com/ispbillingai/acs-sub000/models"
)

// Task payloads, one per task type. Validation runs before any RPC is
// generated; a failing payload fails the task without touching the wire.

type InfoPayload struct {
	Group      string   `json:"group,omitempty"`
	Parameters []string `json:"parameters" validate:"required,min=1,dive,required"`
}

type WifiPayload struct {
	SSID       string `json:"ssid" validate:"required"`
	Password   string `json:"password,omitempty"`
	Instance24 int    `json:"instance24" validate:"required,min=1"`
	Instance5  int    `json:"instance5,omitempty" validate:"omitempty,min=1"`
}

type WanPayload struct {
	ConnectionType string `json:"connectionType" validate:"required,oneof=DHCP PPPoE Static"`
	DeviceIndex    int    `json:"deviceIndex,omitempty"`
	ConnIndex      int    `json:"connIndex,omitempty"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	IPAddress      string `json:"ipAddress,omitempty"`
	SubnetMask     string `json:"subnetMask,omitempty"`
	Gateway        string `json:"gateway,omitempty"`
	DNS1           string `json:"dns1,omitempty"`
	DNS2           string `json:"dns2,omitempty"`
}

type RebootPayload struct {
	Reason string `json:"reason,omitempty"`
}

type HuaweiRebootPayload struct {
	DelaySeconds int `json:"delaySeconds" validate:"min=0"`
}

// rpcHandler generates the outbound RPC for one task type. The set of
// handlers is closed; adding a task type means adding a handler here.
type rpcHandler interface {
	next(a *Application, task *models.Task, id string) (cwmp.Message, error)
}

var rpcHandlers = map[string]rpcHandler{
	models.TaskInfo:         infoHandler{},
	models.TaskInfoGroup:    infoHandler{},
	models.TaskWifi:         wifiHandler{},
	models.TaskWan:          wanHandler{},
	models.TaskReboot:       rebootHandler{},
	models.TaskHuaweiReboot: huaweiRebootHandler{},
}

// NextRPC produces the outbound CWMP method for a task. echoID carries the
// inbound correlation id; empty means this is the first RPC of the task
// and a fresh id is minted. An error means the task must fail with the
// error text and no RPC goes out.
func (a *Application) NextRPC(task *models.Task, echoID string) (cwmp.Message, error) {
	handler, ok := rpcHandlers[task.TaskType]
	if !ok {
		return nil, fmt.Errorf("unknown task type %q", task.TaskType)
	}
	id := echoID
	if id == "" {
		id = fmt.Sprintf("task-%d-%s", task.ID, common.UUID())
	}
	return handler.next(a, task, id)
}

func (a *Application) decodePayload(task *models.Task, out interface{}) error {
	if err := json.Unmarshal([]byte(task.TaskData), out); err != nil {
		return fmt.Errorf("bad task payload: %w", err)
	}
	if err := a.validate.Struct(out); err != nil {
		return fmt.Errorf("invalid task payload: %w", err)
	}
	return nil
}

type infoHandler struct{}

func (infoHandler) next(a *Application, task *models.Task, id string) (cwmp.Message, error) {
	var p InfoPayload
	if err := a.decodePayload(task, &p); err != nil {
		return nil, fmt.Errorf("no parameters defined: %w", err)
	}
	return &cwmp.GetParameterValues{ID: id, Name: p.Group, ParameterNames: p.Parameters}, nil
}

type wifiHandler struct{}

func (wifiHandler) next(a *Application, task *models.Task, id string) (cwmp.Message, error) {
	var p WifiPayload
	if err := a.decodePayload(task, &p); err != nil {
		return nil, err
	}
	params := map[string]cwmp.ValueStruct{}
	addWlanInstance(params, p.Instance24, p)
	if p.Instance5 > 0 {
		addWlanInstance(params, p.Instance5, p)
	}
	return &cwmp.SetParameterValues{
		ID:           id,
		ParameterKey: "wifi-" + common.UUID(),
		Params:       params,
	}, nil
}

func addWlanInstance(params map[string]cwmp.ValueStruct, instance int, p WifiPayload) {
	prefix := fmt.Sprintf("InternetGatewayDevice.LANDevice.1.WLANConfiguration.%d.", instance)
	params[prefix+"SSID"] = cwmp.ValueStruct{Type: "xsd:string", Value: p.SSID}
	params[prefix+"Enable"] = cwmp.ValueStruct{Type: "xsd:boolean", Value: "true"}
	if p.Password != "" {
		params[prefix+"KeyPassphrase"] = cwmp.ValueStruct{Type: "xsd:string", Value: p.Password}
	}
}

type wanHandler struct{}

func (wanHandler) next(a *Application, task *models.Task, id string) (cwmp.Message, error) {
	var p WanPayload
	if err := a.decodePayload(task, &p); err != nil {
		return nil, err
	}
	devIdx, connIdx := p.DeviceIndex, p.ConnIndex
	if devIdx == 0 {
		devIdx = 1
	}
	if connIdx == 0 {
		connIdx = 1
	}
	devPrefix := fmt.Sprintf("InternetGatewayDevice.WANDevice.1.WANConnectionDevice.%d.", devIdx)

	params := map[string]cwmp.ValueStruct{}
	switch p.ConnectionType {
	case "PPPoE":
		if p.Username == "" || p.Password == "" {
			return nil, fmt.Errorf("PPPoE connection requires username and password")
		}
		prefix := fmt.Sprintf("%sWANPPPConnection.%d.", devPrefix, connIdx)
		params[prefix+"Enable"] = cwmp.ValueStruct{Type: "xsd:boolean", Value: "true"}
		params[prefix+"ConnectionType"] = cwmp.ValueStruct{Type: "xsd:string", Value: "IP_Routed"}
		params[prefix+"Username"] = cwmp.ValueStruct{Type: "xsd:string", Value: p.Username}
		params[prefix+"Password"] = cwmp.ValueStruct{Type: "xsd:string", Value: p.Password}
	case "DHCP":
		prefix := fmt.Sprintf("%sWANIPConnection.%d.", devPrefix, connIdx)
		params[prefix+"Enable"] = cwmp.ValueStruct{Type: "xsd:boolean", Value: "true"}
		params[prefix+"ConnectionType"] = cwmp.ValueStruct{Type: "xsd:string", Value: "IP_Routed"}
		params[prefix+"AddressingType"] = cwmp.ValueStruct{Type: "xsd:string", Value: "DHCP"}
	case "Static":
		if p.IPAddress == "" || p.SubnetMask == "" || p.Gateway == "" {
			return nil, fmt.Errorf("static connection requires ipAddress, subnetMask and gateway")
		}
		prefix := fmt.Sprintf("%sWANIPConnection.%d.", devPrefix, connIdx)
		params[prefix+"Enable"] = cwmp.ValueStruct{Type: "xsd:boolean", Value: "true"}
		params[prefix+"AddressingType"] = cwmp.ValueStruct{Type: "xsd:string", Value: "Static"}
		params[prefix+"ExternalIPAddress"] = cwmp.ValueStruct{Type: "xsd:string", Value: p.IPAddress}
		params[prefix+"SubnetMask"] = cwmp.ValueStruct{Type: "xsd:string", Value: p.SubnetMask}
		params[prefix+"DefaultGateway"] = cwmp.ValueStruct{Type: "xsd:string", Value: p.Gateway}
		var dns []string
		for _, server := range []string{p.DNS1, p.DNS2} {
			if server != "" {
				dns = append(dns, server)
			}
		}
		if len(dns) > 0 {
			params[prefix+"DNSServers"] = cwmp.ValueStruct{Type: "xsd:string", Value: strings.Join(dns, ",")}
		}
	}
	return &cwmp.SetParameterValues{
		ID:           id,
		ParameterKey: "wan-" + common.UUID(),
		Params:       params,
	}, nil
}

type rebootHandler struct{}

func (rebootHandler) next(a *Application, task *models.Task, id string) (cwmp.Message, error) {
	var p RebootPayload
	if err := a.decodePayload(task, &p); err != nil {
		return nil, err
	}
	return &cwmp.Reboot{ID: id, CommandKey: "reboot-" + common.UUID()}, nil
}

type huaweiRebootHandler struct{}

func (huaweiRebootHandler) next(a *Application, task *models.Task, id string) (cwmp.Message, error) {
	var p HuaweiRebootPayload
	if err := a.decodePayload(task, &p); err != nil {
		return nil, err
	}
	delay := p.DelaySeconds
	if delay == 0 {
		delay = 1
	}
	return &cwmp.X_HW_DelayReboot{
		ID:           id,
		CommandKey:   "hw-reboot-" + common.UUID(),
		DelaySeconds: delay,
	}, nil
}
