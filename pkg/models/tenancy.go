package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account types carried in tokens and audit rows.
const (
	UserTypeFounder = "founder"
	UserTypeISP     = "isp"
	UserTypeUser    = "user"
)

// Founder is the platform operator at the top of the tenant hierarchy.
type Founder struct {
	Base
	Email        string  `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string  `json:"-" gorm:"size:255;not null"`
	CompanyName  string  `json:"company_name" gorm:"size:255;not null"`
	FullName     string  `json:"full_name" gorm:"size:255;not null"`
	Phone        string  `json:"phone,omitempty" gorm:"size:20"`
	Address      string  `json:"address,omitempty" gorm:"type:text"`
	IsActive     bool    `json:"is_active" gorm:"not null"`
	Settings     JSONMap `json:"settings"`
	TOTPSecret   string  `json:"-" gorm:"column:totp_secret;size:64"`
	TOTPEnabled  bool    `json:"totp_enabled" gorm:"column:totp_enabled"`

	ISPs []ISP `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (Founder) TableName() string { return "founders" }

// ISP is a reseller tenant owned by a founder.
type ISP struct {
	Base
	FounderID     uuid.UUID `json:"founder_id" gorm:"type:uuid;index"`
	CompanyName   string    `json:"company_name" gorm:"size:255;not null"`
	Domain        string    `json:"domain" gorm:"size:255;uniqueIndex;not null"`
	Email         string    `json:"email" gorm:"size:255;index;not null"`
	PasswordHash  string    `json:"-" gorm:"size:255;not null"`
	ContactPerson string    `json:"contact_person,omitempty" gorm:"size:255"`
	Phone         string    `json:"phone,omitempty" gorm:"size:20"`
	Address       string    `json:"address,omitempty" gorm:"type:text"`
	Branding      JSONMap   `json:"branding"`
	Settings      JSONMap   `json:"settings"`
	IsActive      bool      `json:"is_active" gorm:"not null"`

	Branches []Branch          `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Plans    []SubscriptionPlan `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (ISP) TableName() string { return "isps" }

// Branch is a sub-unit of an ISP that owns subscribers and devices.
type Branch struct {
	Base
	ISPID        uuid.UUID `json:"isp_id" gorm:"column:isp_id;type:uuid;index"`
	Name         string    `json:"name" gorm:"size:255;not null"`
	Location     string    `json:"location,omitempty" gorm:"size:255"`
	ManagerName  string    `json:"manager_name,omitempty" gorm:"size:255"`
	ContactEmail string    `json:"contact_email,omitempty" gorm:"size:255"`
	Phone        string    `json:"phone,omitempty" gorm:"size:20"`
	Address      string    `json:"address,omitempty" gorm:"type:text"`
	Settings     JSONMap   `json:"settings"`
	IsActive     bool      `json:"is_active" gorm:"not null"`

	Users   []User          `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Devices []NetworkDevice `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (Branch) TableName() string { return "branches" }

// User is an end subscriber attached to a branch.
type User struct {
	Base
	BranchID         uuid.UUID  `json:"branch_id" gorm:"type:uuid;index"`
	PlanID           *uuid.UUID `json:"plan_id,omitempty" gorm:"type:uuid;index"`
	Username         string     `json:"username" gorm:"size:100;uniqueIndex;not null"`
	Email            string     `json:"email" gorm:"size:255;index;not null"`
	PasswordHash     string     `json:"-" gorm:"size:255;not null"`
	FullName         string     `json:"full_name" gorm:"size:255;not null"`
	Phone            string     `json:"phone,omitempty" gorm:"size:20"`
	Address          string     `json:"address,omitempty" gorm:"type:text"`
	SubscriptionPlan string     `json:"subscription_plan" gorm:"size:100"`
	BandwidthLimit   int        `json:"bandwidth_limit"`
	DataLimit        *int       `json:"data_limit,omitempty"`
	ConnectionType   string     `json:"connection_type" gorm:"size:50;default:broadband"`
	IPAddress        string     `json:"ip_address,omitempty" gorm:"size:45"`
	MACAddress       string     `json:"mac_address,omitempty" gorm:"size:17"`
	IsActive         bool       `json:"is_active" gorm:"not null"`
	Settings         JSONMap    `json:"settings"`

	Usage    []BandwidthUsage `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Payments []Payment        `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (User) TableName() string { return "users" }

// SubscriptionPlan is a priced bandwidth package offered by an ISP.
type SubscriptionPlan struct {
	Base
	ISPID          uuid.UUID       `json:"isp_id" gorm:"column:isp_id;type:uuid;index"`
	Name           string          `json:"name" gorm:"size:100;not null"`
	Description    string          `json:"description,omitempty" gorm:"type:text"`
	BandwidthLimit int             `json:"bandwidth_limit" gorm:"not null"`
	DataLimit      *int            `json:"data_limit,omitempty"`
	Price          decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Currency       string          `json:"currency" gorm:"size:3;default:USD"`
	BillingCycle   string          `json:"billing_cycle" gorm:"size:20;default:monthly"`
	Features       JSONMap         `json:"features"`
	IsActive       bool            `json:"is_active" gorm:"not null"`
}

func (SubscriptionPlan) TableName() string { return "subscription_plans" }

// NetworkDevice is a router, switch or NAS registered on a branch.
type NetworkDevice struct {
	Base
	BranchID          uuid.UUID  `json:"branch_id" gorm:"type:uuid;index"`
	Name              string     `json:"name" gorm:"size:255;not null"`
	DeviceType        string     `json:"device_type" gorm:"size:50;not null"`
	IPAddress         string     `json:"ip_address" gorm:"size:45;not null"`
	Username          string     `json:"username,omitempty" gorm:"size:100"`
	PasswordEncrypted string     `json:"-" gorm:"type:text"`
	SNMPCommunity     string     `json:"-" gorm:"column:snmp_community;size:100"`
	RadiusSecret      string     `json:"-" gorm:"size:255"`
	Settings          JSONMap    `json:"settings"`
	IsActive          bool       `json:"is_active" gorm:"not null"`
	LastSeen          *time.Time `json:"last_seen,omitempty"`
}

func (NetworkDevice) TableName() string { return "network_devices" }

// TenantAccess grants a principal a role on a tenant other than its own.
type TenantAccess struct {
	Base
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	TenantID    uuid.UUID `json:"tenant_id" gorm:"type:uuid;index;not null"`
	TenantType  string    `json:"tenant_type" gorm:"size:20;not null"`
	Role        string    `json:"role" gorm:"size:100;not null"`
	Permissions JSONMap   `json:"permissions"`
}

func (TenantAccess) TableName() string { return "tenant_access" }
