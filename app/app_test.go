package app

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ispbillingai/acs-sub000/common/cwmp"
	"github.com/ispbillingai/acs-sub000/config"
	"github.com/ispbillingai/acs-sub000/models"
)

func newTestApp(t *testing.T) *Application {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	cfg := config.Default()
	cfg.Tr069.Username = "acs"
	cfg.Tr069.Password = "acs"

	a, err := NewApplication(cfg, db)
	require.NoError(t, err)
	return a
}

func newTestDevice(t *testing.T, a *Application, sn string) *models.Device {
	t.Helper()
	now := time.Now()
	dev := &models.Device{
		SerialNumber: sn,
		Manufacturer: "Huawei",
		Oui:          "00E0FC",
		ProductClass: "HG8145V5",
		Status:       models.DeviceOnline,
		LastInform:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, a.DB().Create(dev).Error)
	return dev
}

func testInform(sn string) *cwmp.Inform {
	msg := cwmp.NewInform()
	msg.ID = "inform-1"
	msg.Manufacturer = "Huawei"
	msg.OUI = "00E0FC"
	msg.ProductClass = "HG8145V5"
	msg.Sn = sn
	msg.Events = []cwmp.EventStruct{{EventCode: cwmp.EventBoot}}
	return msg
}

func TestRegisterInformCreatesDevice(t *testing.T) {
	a := newTestApp(t)

	msg := testInform("SN001")
	msg.Params["InternetGatewayDevice.DeviceInfo.SoftwareVersion"] = "V5R020"
	msg.Params["InternetGatewayDevice.ManagementServer.ConnectionRequestURL"] = "http://10.0.0.9:7547/cr"

	dev, err := a.RegisterInform(msg, "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, "SN001", dev.SerialNumber)
	assert.Equal(t, models.DeviceOnline, dev.Status)
	assert.Equal(t, "V5R020", dev.SoftwareVersion)
	assert.Equal(t, "http://10.0.0.9:7547/cr", dev.ConnectionRequestURL)

	stored, err := a.GetDeviceBySn("SN001")
	require.NoError(t, err)
	assert.Equal(t, "Huawei", stored.Manufacturer)
	assert.Equal(t, "10.0.0.9", stored.IPAddress)
}

func TestRegisterInformRefreshesExisting(t *testing.T) {
	a := newTestApp(t)
	newTestDevice(t, a, "SN002")

	msg := testInform("SN002")
	msg.Params["Device.DeviceInfo.ModelName"] = "EG8145X6"

	_, err := a.RegisterInform(msg, "192.168.1.50")
	require.NoError(t, err)

	stored, err := a.GetDeviceBySn("SN002")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50", stored.IPAddress)
	assert.Equal(t, "EG8145X6", stored.ModelName)

	var count int64
	a.DB().Model(&models.Device{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestStaticCredentials(t *testing.T) {
	creds := StaticCredentials{Username: "acs", Password: "secret"}
	assert.True(t, creds.Check("acs", "secret"))
	assert.False(t, creds.Check("acs", "wrong"))
	assert.False(t, creds.Check("other", "secret"))
	assert.False(t, StaticCredentials{}.Check("", ""))
}
