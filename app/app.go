// Package app is the CWMP orchestration engine: device registry access,
// the durable task store and its state machine, cross-request session
// continuity, RPC generation and parameter mapping. All cross-request
// state lives in the database; nothing here assumes two requests from the
// same device share memory.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/ispbillingai/acs-sub000/common/cwmp"
	"github.com/ispbillingai/acs-sub000/common/zaplog/log"
	"github.com/ispbillingai/acs-sub000/config"
	"github.com/ispbillingai/acs-sub000/models"
)

// CredentialStore validates HTTP basic credentials presented by inbound
// device requests.
type CredentialStore interface {
	Check(username, password string) bool
}

// StaticCredentials is the config-backed credential store.
type StaticCredentials struct {
	Username string
	Password string
}

func (s StaticCredentials) Check(username, password string) bool {
	return s.Username != "" && username == s.Username && password == s.Password
}

type Application struct {
	cfg      *config.Config
	gormDB   *gorm.DB
	creds    CredentialStore
	validate *validator.Validate
}

func NewApplication(cfg *config.Config, db *gorm.DB) (*Application, error) {
	if err := db.AutoMigrate(
		&models.Device{},
		&models.Task{},
		&models.ConnectedHost{},
		&models.DeviceParam{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Application{
		cfg:      cfg,
		gormDB:   db,
		creds:    StaticCredentials{Username: cfg.Tr069.Username, Password: cfg.Tr069.Password},
		validate: validator.New(),
	}, nil
}

func (a *Application) DB() *gorm.DB           { return a.gormDB }
func (a *Application) Config() *config.Config { return a.cfg }
func (a *Application) Creds() CredentialStore { return a.creds }

// SetCredentialStore swaps the credential backend (tests, external stores).
func (a *Application) SetCredentialStore(cs CredentialStore) { a.creds = cs }

// GetDeviceBySn resolves a registry row by serial number.
func (a *Application) GetDeviceBySn(sn string) (*models.Device, error) {
	var dev models.Device
	err := a.gormDB.Where("serial_number = ?", sn).First(&dev).Error
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// RegisterInform creates the device row on first contact and refreshes
// identity, address and status fields on every Inform.
func (a *Application) RegisterInform(msg *cwmp.Inform, ip string) (*models.Device, error) {
	now := time.Now()
	dev, err := a.GetDeviceBySn(msg.Sn)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		dev = &models.Device{
			SerialNumber: msg.Sn,
			Manufacturer: msg.Manufacturer,
			Oui:          msg.OUI,
			ProductClass: msg.ProductClass,
			IPAddress:    ip,
			Status:       models.DeviceOnline,
			LastInform:   now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		applyInformIdentity(dev, msg)
		if err := a.gormDB.Create(dev).Error; err != nil {
			return nil, fmt.Errorf("register device %s: %w", msg.Sn, err)
		}
		log.Info2("auto registered new device sn=" + msg.Sn)
		return dev, nil
	}
	if err != nil {
		return nil, err
	}

	dev.IPAddress = ip
	dev.Status = models.DeviceOnline
	dev.LastInform = now
	if msg.Manufacturer != "" {
		dev.Manufacturer = msg.Manufacturer
	}
	if msg.OUI != "" {
		dev.Oui = msg.OUI
	}
	if msg.ProductClass != "" {
		dev.ProductClass = msg.ProductClass
	}
	applyInformIdentity(dev, msg)
	err = a.gormDB.Model(&models.Device{}).Where("serial_number = ?", msg.Sn).
		Updates(map[string]interface{}{
			"ip_address":             dev.IPAddress,
			"status":                 dev.Status,
			"last_inform":            dev.LastInform,
			"manufacturer":           dev.Manufacturer,
			"oui":                    dev.Oui,
			"product_class":          dev.ProductClass,
			"model_name":             dev.ModelName,
			"software_version":       dev.SoftwareVersion,
			"hardware_version":       dev.HardwareVersion,
			"connection_request_url": dev.ConnectionRequestURL,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("update device %s: %w", msg.Sn, err)
	}
	return dev, nil
}

// applyInformIdentity copies identity parameters reported in the Inform,
// trying the TR-181 path first, then TR-098.
func applyInformIdentity(dev *models.Device, msg *cwmp.Inform) {
	if v := informParam(msg,
		"Device.DeviceInfo.SoftwareVersion",
		"InternetGatewayDevice.DeviceInfo.SoftwareVersion"); v != "" {
		dev.SoftwareVersion = v
	}
	if v := informParam(msg,
		"Device.DeviceInfo.HardwareVersion",
		"InternetGatewayDevice.DeviceInfo.HardwareVersion"); v != "" {
		dev.HardwareVersion = v
	}
	if v := informParam(msg,
		"Device.DeviceInfo.ModelName",
		"InternetGatewayDevice.DeviceInfo.ModelName"); v != "" {
		dev.ModelName = v
	}
	if v := informParam(msg,
		"Device.ManagementServer.ConnectionRequestURL",
		"InternetGatewayDevice.ManagementServer.ConnectionRequestURL"); v != "" {
		dev.ConnectionRequestURL = v
	}
}

func informParam(msg *cwmp.Inform, tr181Path, tr098Path string) string {
	v := msg.GetParam(tr181Path)
	if v == "" && tr098Path != "" {
		v = msg.GetParam(tr098Path)
	}
	return v
}
