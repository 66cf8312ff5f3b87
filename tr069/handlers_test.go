package tr069

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ispbillingai/acs-sub000/app"
	"github.com/ispbillingai/acs-sub000/common/cwmp"
	"github.com/ispbillingai/acs-sub000/config"
	"github.com/ispbillingai/acs-sub000/models"
)

func newTestServer(t *testing.T) (*Tr069Server, *app.Application) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	cfg := config.Default()
	cfg.Tr069.Username = "acs"
	cfg.Tr069.Password = "acs"

	a, err := app.NewApplication(cfg, db)
	require.NoError(t, err)
	return NewTr069Server(a), a
}

func postCwmp(s *Tr069Server, body []byte, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(body)))
	req.SetBasicAuth("acs", "acs")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func informFor(sn string) *cwmp.Inform {
	msg := cwmp.NewInform()
	msg.ID = "cpe-" + sn
	msg.Manufacturer = "Huawei"
	msg.OUI = "00E0FC"
	msg.ProductClass = "HG8145V5"
	msg.Sn = sn
	msg.Events = []cwmp.EventStruct{{EventCode: cwmp.EventPeriodic}}
	return msg
}

func seedDevice(t *testing.T, a *app.Application, sn, ssid string) *models.Device {
	t.Helper()
	now := time.Now()
	dev := &models.Device{
		SerialNumber: sn,
		Status:       models.DeviceOnline,
		Ssid:         ssid,
		LastInform:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, a.DB().Create(dev).Error)
	return dev
}

func TestUnauthenticatedPostRejected(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// A first-contact Inform registers the device, auto-queues discovery and
// answers with the discovery RPC directly.
func TestInformFromUnseenDevice(t *testing.T) {
	s, a := newTestServer(t)

	rec := postCwmp(s, informFor("NEW001").CreateXML(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<cwmp:GetParameterValues>")

	dev, err := a.GetDeviceBySn("NEW001")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceOnline, dev.Status)
	require.NotNil(t, dev.CurrentTaskID)

	task, err := a.GetTask(*dev.CurrentTaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInfo, task.TaskType)
	assert.Equal(t, models.TaskInProgress, task.Status)
}

// An Inform while a wifi task is pending is answered with that task's
// SetParameterValues and the task moves to in_progress.
func TestInformDrivesPendingTask(t *testing.T) {
	s, a := newTestServer(t)
	dev := seedDevice(t, a, "DEV100", "Existing")

	task, err := a.Enqueue(dev.ID, models.TaskWifi,
		app.WifiPayload{SSID: "Home-5G", Password: "pw123456", Instance24: 1})
	require.NoError(t, err)

	rec := postCwmp(s, informFor("DEV100").CreateXML(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<cwmp:SetParameterValues>")
	assert.Contains(t, rec.Body.String(), "Home-5G")

	stored, err := a.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, stored.Status)
}

// Status 0 completes the in-progress task and clears the pointer; a
// non-zero status fails it with the code in the message.
func TestSetParameterValuesResponseOutcomes(t *testing.T) {
	s, a := newTestServer(t)
	dev := seedDevice(t, a, "DEV101", "Existing")

	task, err := a.Enqueue(dev.ID, models.TaskWifi,
		app.WifiPayload{SSID: "A", Instance24: 1})
	require.NoError(t, err)

	rec := postCwmp(s, informFor("DEV101").CreateXML(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	resp := &cwmp.SetParameterValuesResponse{ID: "cpe-DEV101", Status: "0"}
	rec = postCwmp(s, resp.CreateXML(), cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := a.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, stored.Status)

	devRow, err := a.GetDeviceBySn("DEV101")
	require.NoError(t, err)
	assert.Nil(t, devRow.CurrentTaskID)

	// Second task, failing status code.
	task2, err := a.Enqueue(dev.ID, models.TaskWifi,
		app.WifiPayload{SSID: "B", Instance24: 1})
	require.NoError(t, err)
	rec = postCwmp(s, informFor("DEV101").CreateXML(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies = rec.Result().Cookies()

	resp = &cwmp.SetParameterValuesResponse{ID: "cpe-DEV101", Status: "9005"}
	rec = postCwmp(s, resp.CreateXML(), cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stored, err = a.GetTask(task2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, stored.Status)
	assert.Contains(t, stored.Message, "9005")
}

// A reported SSID lands in the registry column and completes the
// discovery task.
func TestGetParameterValuesResponseUpdatesRegistry(t *testing.T) {
	s, a := newTestServer(t)

	rec := postCwmp(s, informFor("DEV102").CreateXML(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "<cwmp:GetParameterValues>")
	cookies := rec.Result().Cookies()

	dev, err := a.GetDeviceBySn("DEV102")
	require.NoError(t, err)
	require.NotNil(t, dev.CurrentTaskID)
	taskID := *dev.CurrentTaskID

	resp := &cwmp.GetParameterValuesResponse{
		ID: "task-resp",
		List: []cwmp.ParameterValue{
			{Name: "InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID", Value: "Home-5G"},
		},
	}
	rec = postCwmp(s, resp.CreateXML(), cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	dev, err = a.GetDeviceBySn("DEV102")
	require.NoError(t, err)
	assert.Equal(t, "Home-5G", dev.Ssid)
	assert.Nil(t, dev.CurrentTaskID)

	task, err := a.GetTask(taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)
}

// An empty parameter list cannot complete a discovery task.
func TestGetParameterValuesResponseEmptyListFails(t *testing.T) {
	s, a := newTestServer(t)

	rec := postCwmp(s, informFor("DEV103").CreateXML(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()

	dev, err := a.GetDeviceBySn("DEV103")
	require.NoError(t, err)
	require.NotNil(t, dev.CurrentTaskID)
	taskID := *dev.CurrentTaskID

	resp := &cwmp.GetParameterValuesResponse{ID: "task-resp"}
	rec = postCwmp(s, resp.CreateXML(), cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	task, err := a.GetTask(taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Contains(t, task.Message, "empty parameter list")
}

// A reported host count chains one follow-up fetch per host.
func TestGetParameterValuesResponseChainsHostGroups(t *testing.T) {
	s, a := newTestServer(t)

	rec := postCwmp(s, informFor("DEV104").CreateXML(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()

	dev, err := a.GetDeviceBySn("DEV104")
	require.NoError(t, err)

	resp := &cwmp.GetParameterValuesResponse{
		ID: "task-resp",
		List: []cwmp.ParameterValue{
			{Name: "InternetGatewayDevice.LANDevice.1.Hosts.HostNumberOfEntries", Value: "2"},
		},
	}
	rec = postCwmp(s, resp.CreateXML(), cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	var count int64
	a.DB().Model(&models.Task{}).
		Where("device_id = ? AND task_type = ?", dev.ID, models.TaskInfoGroup).
		Count(&count)
	assert.EqualValues(t, 2, count)
}

// A device fault fails the owning task with the fault details.
func TestFaultFailsCurrentTask(t *testing.T) {
	s, a := newTestServer(t)
	dev := seedDevice(t, a, "DEV105", "Existing")

	task, err := a.Enqueue(dev.ID, models.TaskReboot, app.RebootPayload{})
	require.NoError(t, err)

	rec := postCwmp(s, informFor("DEV105").CreateXML(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()

	fault := &cwmp.Fault{ID: "f", FaultCode: "9002", FaultString: "Internal error"}
	rec = postCwmp(s, fault.CreateXML(), cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := a.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, stored.Status)
	assert.Contains(t, stored.Message, "9002")
}

// Repeated Informs inside one cycle re-send the RPC three times, then the
// fourth repeat abandons the task.
func TestRepeatedInformsExhaustRetries(t *testing.T) {
	s, a := newTestServer(t)
	dev := seedDevice(t, a, "DEV106", "Existing")

	task, err := a.Enqueue(dev.ID, models.TaskWifi,
		app.WifiPayload{SSID: "X", Instance24: 1})
	require.NoError(t, err)

	body := informFor("DEV106").CreateXML()

	rec := postCwmp(s, body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "<cwmp:SetParameterValues>")

	for i := 0; i < 3; i++ {
		rec = postCwmp(s, body, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "<cwmp:SetParameterValues>")
		stored, _ := a.GetTask(task.ID)
		assert.Equal(t, models.TaskInProgress, stored.Status)
	}

	// Fourth repeat: task abandoned, nothing left to drive.
	rec = postCwmp(s, body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<cwmp:InformResponse>")

	stored, err := a.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, stored.Status)
	assert.Equal(t, "exceeded retries", stored.Message)

	devRow, err := a.GetDeviceBySn("DEV106")
	require.NoError(t, err)
	assert.Nil(t, devRow.CurrentTaskID)
}

// An empty POST inside a cycle drives the next pending task; outside any
// known session it just closes.
func TestEmptyPost(t *testing.T) {
	s, a := newTestServer(t)
	dev := seedDevice(t, a, "DEV107", "Existing")

	rec := postCwmp(s, informFor("DEV107").CreateXML(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<cwmp:InformResponse>")
	cookies := rec.Result().Cookies()

	// Nothing queued: cycle closes.
	rec = postCwmp(s, nil, cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Queue work, poll again.
	_, err := a.Enqueue(dev.ID, models.TaskReboot, app.RebootPayload{})
	require.NoError(t, err)
	rec = postCwmp(s, nil, cookies)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<cwmp:Reboot>")

	// No cookie, no session.
	rec = postCwmp(s, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// Rendered envelopes must carry exactly one XML declaration; strict CPE
// parsers reject a second one mid-document.
func TestResponseIsSingleWellFormedDocument(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postCwmp(s, informFor("DEV111").CreateXML(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, `<?xml version="1.0" encoding="UTF-8"?><soapenv:Envelope`))
	assert.Equal(t, 1, strings.Count(body, "<?xml"))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "xml")
}

// A re-emitted RPC echoes the repeat Inform's correlation id; only the
// first RPC of a task mints its own.
func TestRepeatedInformEchoesCorrelationID(t *testing.T) {
	s, a := newTestServer(t)
	dev := seedDevice(t, a, "DEV112", "Existing")
	_, err := a.Enqueue(dev.ID, models.TaskReboot, app.RebootPayload{})
	require.NoError(t, err)

	msg := informFor("DEV112")
	msg.ID = "inform-round-1"
	rec := postCwmp(s, msg.CreateXML(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), ">inform-round-1</cwmp:ID>")
	assert.Contains(t, rec.Body.String(), ">task-")

	msg.ID = "inform-round-2"
	rec = postCwmp(s, msg.CreateXML(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`<cwmp:ID soapenv:mustUnderstand="1">inform-round-2</cwmp:ID>`)
}

// Garbage bodies are answered fail-safe with no state change.
func TestUnparseableBodyIsFailSafe(t *testing.T) {
	s, a := newTestServer(t)
	dev := seedDevice(t, a, "DEV108", "Existing")
	task, err := a.Enqueue(dev.ID, models.TaskReboot, app.RebootPayload{})
	require.NoError(t, err)

	rec := postCwmp(s, []byte("<<< not xml"), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Well-formed but unknown method is equally inert.
	unknown := &cwmp.GetParameterValues{ID: "x", ParameterNames: []string{"a"}}
	rec = postCwmp(s, unknown.CreateXML(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := a.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, stored.Status)
}

// A task whose payload cannot produce an RPC fails in place and the next
// queued task is driven instead.
func TestBrokenPayloadSkipsToNextTask(t *testing.T) {
	s, a := newTestServer(t)
	dev := seedDevice(t, a, "DEV109", "Existing")

	broken, err := a.Enqueue(dev.ID, models.TaskInfo, map[string]interface{}{})
	require.NoError(t, err)
	good, err := a.Enqueue(dev.ID, models.TaskReboot, app.RebootPayload{})
	require.NoError(t, err)

	rec := postCwmp(s, informFor("DEV109").CreateXML(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<cwmp:Reboot>")

	stored, err := a.GetTask(broken.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, stored.Status)
	assert.Contains(t, stored.Message, "no parameters defined")

	stored, err = a.GetTask(good.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, stored.Status)
}
