package tr069

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ispbillingai/acs-sub000/app"
	"github.com/ispbillingai/acs-sub000/common/cwmp"
	"github.com/ispbillingai/acs-sub000/common/zaplog/log"
	"github.com/ispbillingai/acs-sub000/models"
)

// Tr069Index is the single CWMP entry point. Every branch ends by writing
// exactly one response body; anything unparseable is answered with an
// empty response and zero task-state mutation.
func (s *Tr069Server) Tr069Index(c echo.Context) error {
	requestBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		log.Error2("cwmp read body error", zap.String("namespace", "tr069"), zap.Error(err))
		return noContentResp(c)
	}
	if len(requestBody) == 0 {
		return s.processEmpty(c)
	}

	msg, err := cwmp.ParseXML(requestBody)
	if err != nil {
		log.Error2("cwmp classify failed",
			zap.String("namespace", "tr069"),
			zap.Error(err),
			zap.String("ipaddr", c.RealIP()))
		return noContentResp(c)
	}

	log.Info2("recv CPE message",
		zap.String("namespace", "tr069"),
		zap.String("msgtype", msg.GetName()),
		zap.String("msgid", msg.GetID()),
		zap.String("ipaddr", c.RealIP()))

	switch m := msg.(type) {
	case *cwmp.Inform:
		return s.processInform(c, m)
	case *cwmp.GetParameterValuesResponse:
		return s.processGetParameterValuesResponse(c, m)
	case *cwmp.SetParameterValuesResponse:
		return s.processSetParameterValuesResponse(c, m)
	case *cwmp.Fault:
		return s.processFault(c, m)
	default:
		return noContentResp(c)
	}
}

// processInform opens a cycle: register/refresh the device, run the
// auto-queue policy and either start the next task or acknowledge with a
// bare InformResponse.
func (s *Tr069Server) processInform(c echo.Context, msg *cwmp.Inform) error {
	dev, err := s.app.RegisterInform(msg, c.RealIP())
	if err != nil {
		log.Error2("register inform failed",
			zap.String("namespace", "tr069"), zap.String("sn", msg.Sn), zap.Error(err))
		return noContentResp(c)
	}
	s.SetLatestInformByCookie(c, msg.Sn)

	if _, err := s.app.BeginCycle(msg.Sn); err != nil {
		log.Error2("begin cycle failed",
			zap.String("namespace", "tr069"), zap.String("sn", msg.Sn), zap.Error(err))
	}

	if len(msg.ParamList) > 0 {
		if _, err := s.app.ApplyParams(msg.Sn, msg.ParamList); err != nil {
			log.Errorf("apply inform params for %s: %s", msg.Sn, err.Error())
		}
	}

	// Re-read: the parameter report may have filled the baseline fields
	// the auto-queue policy checks.
	if fresh, err := s.app.GetDeviceBySn(msg.Sn); err == nil {
		dev = fresh
	}
	if err := s.app.EnsureDiscoveryTask(dev); err != nil {
		log.Errorf("auto-queue discovery for %s: %s", msg.Sn, err.Error())
	}

	if resp := s.nextTaskRPC(dev, msg.ID); resp != nil {
		return xmlCwmpMessage(c, resp)
	}
	ack := &cwmp.InformResponse{ID: msg.ID, MaxEnvelopes: msg.MaxEnvelopes}
	return xmlCwmpMessage(c, ack.CreateXML())
}

// processEmpty handles the bare POST a device sends while polling for the
// next command inside an open cycle.
func (s *Tr069Server) processEmpty(c echo.Context) error {
	sn := s.GetLatestCookieSn(c)
	if sn == "" {
		return noContentResp(c)
	}
	if err := s.app.ExpireStaleTask(sn); err != nil {
		log.Errorf("expire stale task for %s: %s", sn, err.Error())
	}
	dev, err := s.app.GetDeviceBySn(sn)
	if err != nil {
		return noContentResp(c)
	}
	if resp := s.nextTaskRPC(dev, ""); resp != nil {
		return xmlCwmpMessage(c, resp)
	}
	// Nothing owed: close the cycle.
	return noContentResp(c)
}

// nextTaskRPC resolves the task to drive (current first, then oldest
// pending) and produces its RPC. Tasks whose payload cannot produce an
// RPC fail in place and the next pending one is tried. Returns nil when
// the device is owed nothing. echoID is the inbound correlation id:
// re-emitted RPCs echo it, the first RPC of a task mints its own.
func (s *Tr069Server) nextTaskRPC(dev *models.Device, echoID string) []byte {
	sn := dev.SerialNumber
	task, err := s.app.CurrentTask(sn)
	if err != nil {
		log.Errorf("resolve current task for %s: %s", sn, err.Error())
		return nil
	}

	for i := 0; i < 8; i++ {
		if task == nil {
			task, err = s.app.NextPending(dev.ID)
			if err != nil {
				log.Errorf("next pending for %s: %s", sn, err.Error())
				return nil
			}
			if task == nil {
				return nil
			}
		}

		id := ""
		if task.Status == models.TaskInProgress {
			id = echoID
		}
		rpc, err := s.app.NextRPC(task, id)
		if err != nil {
			if terr := s.app.Transition(task.ID, models.TaskFailed, err.Error()); terr != nil {
				log.Errorf("fail task %d: %s", task.ID, terr.Error())
				return nil
			}
			task = nil
			continue
		}

		if task.Status == models.TaskPending {
			err = s.app.Assign(sn, task, "sent "+rpc.GetName())
			if err == app.ErrTaskConflict {
				// Another request won the assignment; drive its task.
				task, err = s.app.CurrentTask(sn)
				if err != nil || task == nil {
					return nil
				}
				continue
			}
			if err != nil {
				log.Errorf("assign task %d to %s: %s", task.ID, sn, err.Error())
				return nil
			}
		} else {
			// Already in progress: the device polled again without
			// answering, re-emit and reset the timeout clock.
			if err := s.app.TouchTask(task.ID, "re-sent "+rpc.GetName()); err != nil {
				log.Errorf("touch task %d: %s", task.ID, err.Error())
			}
		}

		log.Info2("send CPE RPC",
			zap.String("namespace", "tr069"),
			zap.String("sn", sn),
			zap.String("rpc", rpc.GetName()),
			zap.Int64("task_id", task.ID))
		return rpc.CreateXML()
	}
	return nil
}

// processGetParameterValuesResponse persists the reported values and
// completes the owning discovery task.
func (s *Tr069Server) processGetParameterValuesResponse(c echo.Context, msg *cwmp.GetParameterValuesResponse) error {
	sn := s.GetLatestCookieSn(c)
	if sn == "" {
		return noContentResp(c)
	}

	result, err := s.app.ApplyParams(sn, msg.List)
	if err != nil {
		log.Errorf("apply params for %s: %s", sn, err.Error())
	}

	task, err := s.app.CurrentTask(sn)
	if err != nil {
		log.Errorf("resolve current task for %s: %s", sn, err.Error())
		return noContentResp(c)
	}
	if task != nil {
		if len(msg.List) == 0 {
			err = s.app.Transition(task.ID, models.TaskFailed, "empty parameter list in response")
		} else {
			err = s.app.Transition(task.ID, models.TaskCompleted,
				fmt.Sprintf("%d parameters applied", len(msg.List)))
		}
		if err != nil {
			log.Errorf("transition task %d: %s", task.ID, err.Error())
		}
		// A host count on an info response chains per-host follow-ups.
		if result != nil && result.HostCount != nil && *result.HostCount > 0 &&
			task.TaskType == models.TaskInfo {
			if err := s.app.ChainHostGroupTasks(task.DeviceID, *result.HostCount); err != nil {
				log.Errorf("chain host groups for %s: %s", sn, err.Error())
			}
		}
	}
	return noContentResp(c)
}

// processSetParameterValuesResponse closes the owning task on the device
// status code: zero applied, anything else failed.
func (s *Tr069Server) processSetParameterValuesResponse(c echo.Context, msg *cwmp.SetParameterValuesResponse) error {
	sn := s.GetLatestCookieSn(c)
	if sn == "" {
		return noContentResp(c)
	}
	task, err := s.app.CurrentTask(sn)
	if err != nil {
		log.Errorf("resolve current task for %s: %s", sn, err.Error())
		return noContentResp(c)
	}
	if task != nil {
		if msg.Status == "0" {
			err = s.app.Transition(task.ID, models.TaskCompleted, "applied successfully")
		} else {
			err = s.app.Transition(task.ID, models.TaskFailed,
				fmt.Sprintf("device returned status %s", msg.Status))
		}
		if err != nil {
			log.Errorf("transition task %d: %s", task.ID, err.Error())
		}
	}
	return noContentResp(c)
}

// processFault fails the owning task with the device-reported fault.
func (s *Tr069Server) processFault(c echo.Context, msg *cwmp.Fault) error {
	sn := s.GetLatestCookieSn(c)
	if sn == "" {
		return noContentResp(c)
	}
	task, err := s.app.CurrentTask(sn)
	if err != nil {
		log.Errorf("resolve current task for %s: %s", sn, err.Error())
		return noContentResp(c)
	}
	if task != nil {
		err = s.app.Transition(task.ID, models.TaskFailed,
			fmt.Sprintf("device fault %s: %s", msg.FaultCode, msg.FaultString))
		if err != nil {
			log.Errorf("transition task %d: %s", task.ID, err.Error())
		}
	}
	return noContentResp(c)
}

// xmlCwmpMessage writes a pre-rendered envelope verbatim. The envelope
// already carries its own XML declaration, so it must not pass through a
// writer that prepends another one.
func xmlCwmpMessage(c echo.Context, response []byte) error {
	c.Response().Header().Set("Connection", "keep-alive")
	return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, response)
}

func noContentResp(c echo.Context) error {
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("Content-Length", "0")
	return c.NoContent(http.StatusNoContent)
}
