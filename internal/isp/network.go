package isp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/audit"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/security"
)

const (
	defaultRadiusAuthPort = 1812
	defaultRadiusAcctPort = 1813
)

// RadiusConfigRequest is the body of PUT /isp/radius.
type RadiusConfigRequest struct {
	ServerHost    string `json:"server_host" binding:"required,hostname|ip"`
	ServerPort    int    `json:"server_port,omitempty" binding:"omitempty,min=1,max=65535"`
	Secret        string `json:"secret" binding:"required,min=8"`
	NASIdentifier string `json:"nas_identifier" binding:"required,max=100"`
	AuthPort      int    `json:"auth_port,omitempty" binding:"omitempty,min=1,max=65535"`
	AcctPort      int    `json:"acct_port,omitempty" binding:"omitempty,min=1,max=65535"`
}

type RadiusConfigResponse struct {
	ServerHost    string `json:"server_host"`
	ServerPort    int    `json:"server_port"`
	Secret        string `json:"secret"`
	NASIdentifier string `json:"nas_identifier"`
	AuthPort      int    `json:"auth_port"`
	AcctPort      int    `json:"acct_port"`
	Message       string `json:"message"`
}

// ConfigureRadius stores the RADIUS settings with the shared secret sealed.
func (s *Service) ConfigureRadius(ctx context.Context, ispID uuid.UUID, req *RadiusConfigRequest, entry audit.Entry) (*RadiusConfigResponse, error) {
	isp, err := s.isp(ctx, ispID)
	if err != nil {
		return nil, err
	}
	if req.ServerPort == 0 {
		req.ServerPort = defaultRadiusAuthPort
	}
	if req.AuthPort == 0 {
		req.AuthPort = defaultRadiusAuthPort
	}
	if req.AcctPort == 0 {
		req.AcctPort = defaultRadiusAcctPort
	}
	sealed, err := s.seal(req.Secret)
	if err != nil {
		return nil, err
	}

	settings := isp.Settings
	if settings == nil {
		settings = models.JSONMap{}
	}
	settings["radius"] = map[string]interface{}{
		"server_host":    req.ServerHost,
		"server_port":    req.ServerPort,
		"secret":         sealed,
		"nas_identifier": req.NASIdentifier,
		"auth_port":      req.AuthPort,
		"acct_port":      req.AcctPort,
		"updated_at":     s.now().Format(time.RFC3339),
	}
	if err := s.db.WithContext(ctx).Model(isp).Update("settings", settings).Error; err != nil {
		return nil, fmt.Errorf("failed to store radius settings: %w", err)
	}

	entry.Action = audit.ActionModifyCritical
	entry.Resource = "radius_config"
	entry.NewValues = models.JSONMap{"server_host": req.ServerHost, "nas_identifier": req.NASIdentifier}
	_ = s.audit.Record(ctx, entry)

	return &RadiusConfigResponse{
		ServerHost:    req.ServerHost,
		ServerPort:    req.ServerPort,
		Secret:        security.MaskSensitive(req.Secret, security.DefaultVisibleChars),
		NASIdentifier: req.NASIdentifier,
		AuthPort:      req.AuthPort,
		AcctPort:      req.AcctPort,
		Message:       "RADIUS configuration updated successfully",
	}, nil
}

// UpdateBranding replaces the portal branding.
func (s *Service) UpdateBranding(ctx context.Context, ispID uuid.UUID, branding map[string]interface{}) (map[string]interface{}, error) {
	isp, err := s.isp(ctx, ispID)
	if err != nil {
		return nil, err
	}
	if branding == nil {
		branding = map[string]interface{}{}
	}
	if err := s.db.WithContext(ctx).Model(isp).Update("branding", models.JSONMap(branding)).Error; err != nil {
		return nil, fmt.Errorf("failed to update branding: %w", err)
	}
	return map[string]interface{}{
		"message":  "Branding updated successfully",
		"branding": branding,
	}, nil
}

// DeviceCreateRequest is the body of POST /isp/devices.
type DeviceCreateRequest struct {
	BranchID      string                 `json:"branch_id" binding:"required,uuid"`
	Name          string                 `json:"name" binding:"required,max=255"`
	DeviceType    string                 `json:"device_type" binding:"required,oneof=router switch access_point nas olt firewall"`
	IPAddress     string                 `json:"ip_address" binding:"required,ip"`
	Username      string                 `json:"username,omitempty" binding:"omitempty,max=100"`
	Password      string                 `json:"password,omitempty"`
	SNMPCommunity string                 `json:"snmp_community,omitempty" binding:"omitempty,max=100"`
	RadiusSecret  string                 `json:"radius_secret,omitempty"`
	Settings      map[string]interface{} `json:"settings,omitempty"`
}

type DeviceResponse struct {
	ID            string    `json:"id"`
	BranchID      string    `json:"branch_id"`
	Name          string    `json:"name"`
	DeviceType    string    `json:"device_type"`
	IPAddress     string    `json:"ip_address"`
	Username      string    `json:"username,omitempty"`
	Password      string    `json:"password,omitempty"`
	SNMPCommunity string    `json:"snmp_community,omitempty"`
	RadiusSecret  string    `json:"radius_secret,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// RegisterDevice adds a network device to one of the ISP's branches. Stored
// credentials are sealed; the response only carries masked copies.
func (s *Service) RegisterDevice(ctx context.Context, ispID uuid.UUID, req *DeviceCreateRequest, entry audit.Entry) (*DeviceResponse, error) {
	branch, err := s.branchOf(ctx, ispID, uuid.MustParse(req.BranchID))
	if err != nil {
		return nil, err
	}
	device := &models.NetworkDevice{
		BranchID:   branch.ID,
		Name:       req.Name,
		DeviceType: req.DeviceType,
		IPAddress:  req.IPAddress,
		Username:   req.Username,
		Settings:   models.JSONMap(req.Settings),
		IsActive:   true,
	}
	if device.Settings == nil {
		device.Settings = models.JSONMap{}
	}
	if device.PasswordEncrypted, err = s.seal(req.Password); err != nil {
		return nil, err
	}
	if device.SNMPCommunity, err = s.seal(req.SNMPCommunity); err != nil {
		return nil, err
	}
	if device.RadiusSecret, err = s.seal(req.RadiusSecret); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(device).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}

	s.logger.Info("Network device registered",
		zap.String("isp_id", ispID.String()),
		zap.String("device_id", device.ID.String()),
		zap.String("device_type", device.DeviceType))
	entry.Action = audit.ActionCreate
	entry.Resource = "network_device"
	entry.NewValues = models.JSONMap{"device_id": device.ID.String(), "ip_address": device.IPAddress}
	_ = s.audit.Record(ctx, entry)

	return &DeviceResponse{
		ID:            device.ID.String(),
		BranchID:      branch.ID.String(),
		Name:          device.Name,
		DeviceType:    device.DeviceType,
		IPAddress:     device.IPAddress,
		Username:      device.Username,
		Password:      security.MaskSensitive(req.Password, 0),
		SNMPCommunity: security.MaskSensitive(req.SNMPCommunity, 0),
		RadiusSecret:  security.MaskSensitive(req.RadiusSecret, 0),
		IsActive:      true,
		CreatedAt:     device.CreatedAt,
	}, nil
}

func (s *Service) seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	if s.sealer == nil {
		return "", errors.Internal.Explain("credential sealing is not configured")
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return "", fmt.Errorf("failed to seal credential: %w", err)
	}
	return sealed, nil
}

// UsageRecord is one day of a subscriber's traffic as reported by RADIUS
// accounting.
type UsageRecord struct {
	UserID        string  `json:"user_id" binding:"required,uuid"`
	Date          string  `json:"date" binding:"required,datetime=2006-01-02"`
	UploadBytes   int64   `json:"upload_bytes" binding:"min=0"`
	DownloadBytes int64   `json:"download_bytes" binding:"min=0"`
	PeakUsageMbps float64 `json:"peak_usage_mbps" binding:"min=0"`
	PeakHour      int     `json:"peak_hour" binding:"min=0,max=23"`
}

type UsageIngestRequest struct {
	Records []UsageRecord `json:"records" binding:"required,min=1,max=5000,dive"`
}

type UsageIngestResponse struct {
	Ingested int `json:"ingested"`
}

// IngestUsage stores usage rows for the ISP's subscribers. The batch is
// rejected as a whole when any user is outside the ISP.
func (s *Service) IngestUsage(ctx context.Context, ispID uuid.UUID, req *UsageIngestRequest) (*UsageIngestResponse, error) {
	if _, err := s.isp(ctx, ispID); err != nil {
		return nil, err
	}

	wanted := map[string]struct{}{}
	for _, r := range req.Records {
		wanted[uuid.MustParse(r.UserID).String()] = struct{}{}
	}
	ids := make([]string, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	var owned []string
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ? AND id IN (?)", ids, tenancy.UsersOfISP(s.db, ispID)).
		Pluck("id", &owned).Error; err != nil {
		return nil, fmt.Errorf("failed to check subscribers: %w", err)
	}
	if len(owned) != len(ids) {
		return nil, errors.NotFound.Explain("Subscriber not found")
	}

	rows := make([]models.BandwidthUsage, 0, len(req.Records))
	for _, r := range req.Records {
		day, err := time.ParseInLocation("2006-01-02", r.Date, time.UTC)
		if err != nil {
			return nil, errors.Invalid.Explain("invalid date %q", r.Date)
		}
		rows = append(rows, models.BandwidthUsage{
			UserID:        uuid.MustParse(r.UserID),
			Date:          day,
			UploadBytes:   r.UploadBytes,
			DownloadBytes: r.DownloadBytes,
			TotalBytes:    r.UploadBytes + r.DownloadBytes,
			PeakUsageMbps: r.PeakUsageMbps,
			PeakHour:      r.PeakHour,
		})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return nil, dbutil.WrapError(err)
	}
	s.logger.Debug("Usage ingested", zap.String("isp_id", ispID.String()), zap.Int("rows", len(rows)))
	return &UsageIngestResponse{Ingested: len(rows)}, nil
}
