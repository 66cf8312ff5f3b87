package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ispbillingai/acs-sub000/common"
	"github.com/ispbillingai/acs-sub000/common/cwmp"
	"github.com/ispbillingai/acs-sub000/common/zaplog/log"
	"github.com/ispbillingai/acs-sub000/models"
)

var (
	ErrIllegalTransition  = errors.New("illegal task transition")
	ErrDuplicateDiscovery = errors.New("duplicate discovery task")
)

// legalTransitions is the closed transition table. pending->failed exists
// for tasks rejected before any RPC is sent (bad payload, empty parameter
// list).
var legalTransitions = map[string][]string{
	models.TaskPending:    {models.TaskInProgress, models.TaskFailed, models.TaskCanceled, models.TaskPending},
	models.TaskInProgress: {models.TaskCompleted, models.TaskFailed},
	models.TaskFailed:     {models.TaskPending},
	models.TaskCanceled:   {models.TaskPending},
}

// coreParameterNames is the fixed discovery set requested by auto-queued
// info tasks. TR-098 paths with the TR-181 equivalents devices answer.
var coreParameterNames = []string{
	"InternetGatewayDevice.DeviceInfo.SoftwareVersion",
	"InternetGatewayDevice.DeviceInfo.HardwareVersion",
	"InternetGatewayDevice.DeviceInfo.ModelName",
	"InternetGatewayDevice.DeviceInfo.UpTime",
	"InternetGatewayDevice.ManagementServer.ConnectionRequestURL",
	"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID",
	"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.Enable",
	"InternetGatewayDevice.LANDevice.1.Hosts.HostNumberOfEntries",
	"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANIPConnection.1.ExternalIPAddress",
	"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANPPPConnection.1.ExternalIPAddress",
	"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANPPPConnection.1.Username",
}

// Enqueue appends a task for a device. Discovery tasks (info/info_group)
// are idempotent: an identical one already pending or in progress rejects
// the enqueue with ErrDuplicateDiscovery.
func (a *Application) Enqueue(deviceID int64, taskType string, data interface{}) (*models.Task, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal task data: %w", err)
	}
	if common.InSlice(taskType, models.DiscoveryTypes) {
		var count int64
		err := a.gormDB.Model(&models.Task{}).
			Where("device_id = ? AND task_type = ? AND task_data = ? AND status IN ?",
				deviceID, taskType, string(payload),
				[]string{models.TaskPending, models.TaskInProgress}).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrDuplicateDiscovery
		}
	}
	now := time.Now()
	task := &models.Task{
		DeviceID:  deviceID,
		TaskType:  taskType,
		TaskData:  string(payload),
		Status:    models.TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.gormDB.Create(task).Error; err != nil {
		return nil, err
	}
	log.Info2("task enqueued",
		zap.String("namespace", "tasks"),
		zap.Int64("device_id", deviceID),
		zap.Int64("task_id", task.ID),
		zap.String("type", taskType))
	return task, nil
}

// NextPending returns the oldest pending task for a device, or nil.
func (a *Application) NextPending(deviceID int64) (*models.Task, error) {
	var task models.Task
	err := a.gormDB.Where("device_id = ? AND status = ?", deviceID, models.TaskPending).
		Order("created_at asc, id asc").First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask loads one task by id.
func (a *Application) GetTask(taskID int64) (*models.Task, error) {
	var task models.Task
	if err := a.gormDB.First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// Transition moves a task through the state machine. The update is
// qualified on the current status so two racing requests cannot both move
// the same task; a terminal status also clears the owning device's task
// pointer.
func (a *Application) Transition(taskID int64, newStatus, message string) error {
	task, err := a.GetTask(taskID)
	if err != nil {
		return err
	}
	if !common.InSlice(newStatus, legalTransitions[task.Status]) {
		return fmt.Errorf("%w: %s -> %s (task %d)", ErrIllegalTransition, task.Status, newStatus, taskID)
	}
	res := a.gormDB.Model(&models.Task{}).
		Where("id = ? AND status = ?", taskID, task.Status).
		Updates(map[string]interface{}{
			"status":     newStatus,
			"message":    message,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: task %d changed concurrently", ErrIllegalTransition, taskID)
	}
	log.Info2("task transition",
		zap.String("namespace", "tasks"),
		zap.Int64("task_id", taskID),
		zap.String("from", task.Status),
		zap.String("to", newStatus),
		zap.String("message", message))

	if newStatus == models.TaskCompleted || newStatus == models.TaskFailed || newStatus == models.TaskCanceled {
		err := a.gormDB.Model(&models.Device{}).
			Where("id = ? AND current_task_id = ?", task.DeviceID, taskID).
			Update("current_task_id", nil).Error
		if err != nil {
			return fmt.Errorf("clear task pointer: %w", err)
		}
	}
	return nil
}

// TouchTask refreshes a task's message and updated_at without a status
// change, resetting the timeout clock when an RPC is re-emitted.
func (a *Application) TouchTask(taskID int64, message string) error {
	return a.gormDB.Model(&models.Task{}).Where("id = ?", taskID).
		Updates(map[string]interface{}{"message": message, "updated_at": time.Now()}).Error
}

// Cancel is only valid for pending tasks; an in-progress task can only
// time out.
func (a *Application) Cancel(taskID int64) error {
	return a.Transition(taskID, models.TaskCanceled, "canceled by operator")
}

// Retry resets a failed or canceled task to pending.
func (a *Application) Retry(taskID int64) error {
	task, err := a.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status != models.TaskFailed && task.Status != models.TaskCanceled {
		return fmt.Errorf("%w: retry from %s", ErrIllegalTransition, task.Status)
	}
	return a.Transition(taskID, models.TaskPending, "retried by operator")
}

// EnsureDiscoveryTask auto-queues an info task for a device missing
// baseline fields, unless an equivalent one is already open.
func (a *Application) EnsureDiscoveryTask(dev *models.Device) error {
	if dev.Ssid != "" {
		return nil
	}
	_, err := a.Enqueue(dev.ID, models.TaskInfo, InfoPayload{Parameters: coreParameterNames})
	if errors.Is(err, ErrDuplicateDiscovery) {
		return nil
	}
	return err
}

// ChainHostGroupTasks queues one info_group follow-up per reported host
// index so the host table is re-derived in small requestable batches.
func (a *Application) ChainHostGroupTasks(deviceID int64, hostCount int) error {
	for i := 1; i <= hostCount; i++ {
		payload := InfoPayload{
			Group: fmt.Sprintf("host-%d", i),
			Parameters: []string{
				fmt.Sprintf("InternetGatewayDevice.LANDevice.1.Hosts.Host.%d.HostName", i),
				fmt.Sprintf("InternetGatewayDevice.LANDevice.1.Hosts.Host.%d.IPAddress", i),
				fmt.Sprintf("InternetGatewayDevice.LANDevice.1.Hosts.Host.%d.MACAddress", i),
				fmt.Sprintf("InternetGatewayDevice.LANDevice.1.Hosts.Host.%d.InterfaceType", i),
			},
		}
		if _, err := a.Enqueue(deviceID, models.TaskInfoGroup, payload); err != nil {
			if errors.Is(err, ErrDuplicateDiscovery) {
				continue
			}
			return err
		}
	}
	return nil
}

// SubmitTask is the entry point for external actors (dashboard, API): it
// queues the task and nudges the device with a connection request so it
// picks the work up without waiting for its periodic Inform.
func (a *Application) SubmitTask(sn string, taskType string, data interface{}) (*models.Task, error) {
	dev, err := a.GetDeviceBySn(sn)
	if err != nil {
		return nil, err
	}
	task, err := a.Enqueue(dev.ID, taskType, data)
	if err != nil {
		return nil, err
	}
	go a.NudgeDevice(dev)
	return task, nil
}

// NudgeDevice fires an ACS-initiated connection request at the CPE.
// Failures are logged only; the task stays queued for the next Inform.
func (a *Application) NudgeDevice(dev *models.Device) {
	if dev.ConnectionRequestURL == "" {
		return
	}
	ok, err := cwmp.ConnectionRequestAuth(dev.SerialNumber,
		a.cfg.Tr069.ConnectionRequestPassword, dev.ConnectionRequestURL)
	if err != nil {
		log.Errorf("connection request to %s failed: %s", dev.ConnectionRequestURL, err)
		return
	}
	if ok {
		log.Infof("connection request accepted by sn=%s", dev.SerialNumber)
	}
}
