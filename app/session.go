package app

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ispbillingai/acs-sub000/common"
	"github.com/ispbillingai/acs-sub000/common/zaplog/log"
	"github.com/ispbillingai/acs-sub000/models"
)

const (
	// TaskTimeout force-fails a task stuck in_progress with no update.
	// Checked opportunistically on every request for the device; there is
	// no background clock.
	TaskTimeout = 60 * time.Second

	// MaxCycleRetries bounds repeated Informs within one open cycle
	// before the active task is abandoned.
	MaxCycleRetries = 3
)

// ErrTaskConflict means another request assigned a task to the device
// first; the losing request must re-resolve the current task.
var ErrTaskConflict = errors.New("device already has an in-progress task")

// BeginCycle opens (or re-enters) the management cycle for a device on an
// Inform. A device that re-Informs while its current task is still in
// progress is retrying; more than MaxCycleRetries of those force-fails the
// task so the queue is not wedged forever.
func (a *Application) BeginCycle(sn string) (string, error) {
	if err := a.ExpireStaleTask(sn); err != nil {
		return "", err
	}
	dev, err := a.GetDeviceBySn(sn)
	if err != nil {
		return "", err
	}

	if dev.CurrentTaskID != nil {
		retries := dev.CycleRetries + 1
		if retries > MaxCycleRetries {
			taskID := *dev.CurrentTaskID
			log.Error2("task exceeded retries",
				zap.String("namespace", "tr069"),
				zap.String("sn", sn),
				zap.Int64("task_id", taskID))
			if err := a.Transition(taskID, models.TaskFailed, "exceeded retries"); err != nil {
				return "", err
			}
			return a.resetCycle(dev.ID)
		}
		err := a.gormDB.Model(&models.Device{}).Where("id = ?", dev.ID).
			Update("cycle_retries", retries).Error
		if err != nil {
			return "", err
		}
		return dev.CycleID, nil
	}

	return a.resetCycle(dev.ID)
}

func (a *Application) resetCycle(deviceID int64) (string, error) {
	cycleID := common.UUID()
	err := a.gormDB.Model(&models.Device{}).Where("id = ?", deviceID).
		Updates(map[string]interface{}{"cycle_id": cycleID, "cycle_retries": 0}).Error
	if err != nil {
		return "", err
	}
	return cycleID, nil
}

// CurrentTask resolves the active task for a device purely from durable
// state. A pointer at a task that is no longer in progress is stale and
// gets cleared.
func (a *Application) CurrentTask(sn string) (*models.Task, error) {
	dev, err := a.GetDeviceBySn(sn)
	if err != nil {
		return nil, err
	}
	if dev.CurrentTaskID == nil {
		return nil, nil
	}
	task, err := a.GetTask(*dev.CurrentTaskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		task = nil
	} else if err != nil {
		return nil, err
	}
	if task == nil || task.Status != models.TaskInProgress {
		err := a.gormDB.Model(&models.Device{}).
			Where("id = ? AND current_task_id = ?", dev.ID, *dev.CurrentTaskID).
			Update("current_task_id", nil).Error
		if err != nil {
			return nil, err
		}
		return nil, nil
	}
	return task, nil
}

// Assign sets the device's task pointer and moves the task to
// in_progress. The pointer write is a compare-and-set on a null pointer so
// two concurrent requests cannot double-assign.
func (a *Application) Assign(sn string, task *models.Task, message string) error {
	dev, err := a.GetDeviceBySn(sn)
	if err != nil {
		return err
	}
	res := a.gormDB.Model(&models.Device{}).
		Where("id = ? AND current_task_id IS NULL", dev.ID).
		Update("current_task_id", task.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskConflict
	}
	if err := a.Transition(task.ID, models.TaskInProgress, message); err != nil {
		// Roll the pointer back so the device is not wedged on a task
		// that never started.
		a.gormDB.Model(&models.Device{}).
			Where("id = ? AND current_task_id = ?", dev.ID, task.ID).
			Update("current_task_id", nil)
		return err
	}
	return nil
}

// Release clears the pointer without touching task status, for tasks
// deliberately held in progress across several RPC round trips.
func (a *Application) Release(sn string) error {
	return a.gormDB.Model(&models.Device{}).
		Where("serial_number = ?", sn).
		Update("current_task_id", nil).Error
}

// ExpireStaleTask force-fails the device's current task when it has been
// in progress past TaskTimeout without an update.
func (a *Application) ExpireStaleTask(sn string) error {
	dev, err := a.GetDeviceBySn(sn)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if dev.CurrentTaskID == nil {
		return nil
	}
	task, err := a.GetTask(*dev.CurrentTaskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return a.Release(sn)
	}
	if err != nil {
		return err
	}
	if task.Status != models.TaskInProgress {
		return nil
	}
	if time.Since(task.UpdatedAt) <= TaskTimeout {
		return nil
	}
	msg := fmt.Sprintf("timed out waiting for response after %s", TaskTimeout)
	if err := a.Transition(task.ID, models.TaskFailed, msg); err != nil {
		return err
	}
	log.Info2("stale task expired",
		zap.String("namespace", "tr069"),
		zap.String("sn", sn),
		zap.Int64("task_id", task.ID))
	return nil
}
