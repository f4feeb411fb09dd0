package models

import "time"

// SettingsSchemaVersion is the current version of SystemSettings
const SettingsSchemaVersion = 1

// Settings keys stored in the settings table
const (
	SettingsKeySystem        = "system"
	SettingsKeyRBAC          = "rbac"
	SettingsKeyMessaging     = "messaging"
	SettingsKeyNotifications = "notifications"
)

// SettingsKeys lists every known settings key
var SettingsKeys = []string{SettingsKeySystem, SettingsKeyRBAC, SettingsKeyMessaging, SettingsKeyNotifications}

// SettingsRecord is one stored settings row. Version increments on every write.
type SettingsRecord struct {
	Key       string    `db:"key"`
	Value     []byte    `db:"value"`
	Version   int       `db:"version"`
	UpdatedBy *uint     `db:"updated_by"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SystemSettings is the typed application configuration edited by administrators
type SystemSettings struct {
	SchemaVersion int                `json:"schemaVersion"`
	General       GeneralSettings    `json:"general"`
	Appearance    AppearanceSettings `json:"appearance"`
	Views         ViewSettings       `json:"views"`
	Reviews       ReviewSettings     `json:"reviews"`
	Help          HelpSettings       `json:"help"`
	Legal         LegalSettings      `json:"legal"`
}

type GeneralSettings struct {
	Timezone           string       `json:"timezone" validate:"required,timezone"`
	DateFormat         string       `json:"dateFormat" validate:"required,max=20"`
	TimeFormat         string       `json:"timeFormat" validate:"required,oneof=12h 24h"`
	DefaultLanguage    string       `json:"defaultLanguage" validate:"required,bcp47_language_tag"`
	EmailNotifications bool         `json:"emailNotifications"`
	SystemEmails       SystemEmails `json:"systemEmails"`
}

type SystemEmails struct {
	From    string `json:"from" validate:"omitempty,email"`
	ReplyTo string `json:"replyTo" validate:"omitempty,email"`
}

type AppearanceSettings struct {
	Branding Branding    `json:"branding"`
	Colors   ColorScheme `json:"colors"`
}

type Branding struct {
	Logo    string `json:"logo" validate:"omitempty,url"`
	AppName string `json:"appName" validate:"required,notblank,max=100"`
	Favicon string `json:"favicon" validate:"omitempty,url"`
}

type ColorScheme struct {
	Primary       string `json:"primary" validate:"hexcolor"`
	Secondary     string `json:"secondary" validate:"hexcolor"`
	Accent        string `json:"accent" validate:"hexcolor"`
	HeaderBg      string `json:"headerBg" validate:"hexcolor"`
	SidebarBg     string `json:"sidebarBg" validate:"hexcolor"`
	TextPrimary   string `json:"textPrimary" validate:"hexcolor"`
	TextSecondary string `json:"textSecondary" validate:"hexcolor"`
}

type ViewSettings struct {
	DefaultViews    DefaultViews    `json:"defaultViews"`
	DisplayOptions  DisplayOptions  `json:"displayOptions"`
	DashboardLayout DashboardLayout `json:"dashboardLayout"`
}

type DefaultViews struct {
	Projects      string `json:"projects" validate:"oneof=grid list"`
	Users         string `json:"users" validate:"oneof=grid list"`
	Convocatorias string `json:"convocatorias" validate:"oneof=grid list"`
}

type DisplayOptions struct {
	ShowDescription bool `json:"showDescription"`
	ShowMetadata    bool `json:"showMetadata"`
	ShowThumbnails  bool `json:"showThumbnails"`
	ItemsPerPage    int  `json:"itemsPerPage" validate:"min=1,max=100"`
}

type DashboardLayout struct {
	ShowStats             bool `json:"showStats"`
	ShowRecentActivity    bool `json:"showRecentActivity"`
	ShowUpcomingDeadlines bool `json:"showUpcomingDeadlines"`
	ShowQuickActions      bool `json:"showQuickActions"`
}

// ReviewSettings controls whether admins and coordinators may act as reviewers
type ReviewSettings struct {
	AllowAdminReview       bool `json:"allowAdminReview"`
	AllowCoordinatorReview bool `json:"allowCoordinatorReview"`
}

type HelpSettings struct {
	Enabled  bool              `json:"enabled"`
	HelpURLs map[string]string `json:"helpUrls" validate:"dive,keys,role,endkeys,omitempty,url"`
}

type LegalSettings struct {
	TermsAndConditions LegalDocument `json:"termsAndConditions"`
	PrivacyPolicy      LegalDocument `json:"privacyPolicy"`
}

type LegalDocument struct {
	Content     string `json:"content"`
	LastUpdated string `json:"lastUpdated"`
}

// DefaultSystemSettings returns the settings used when nothing is stored
func DefaultSystemSettings() SystemSettings {
	return SystemSettings{
		SchemaVersion: SettingsSchemaVersion,
		General: GeneralSettings{
			Timezone:           "Europe/Madrid",
			DateFormat:         "DD/MM/YYYY",
			TimeFormat:         "24h",
			DefaultLanguage:    "es",
			EmailNotifications: true,
			SystemEmails: SystemEmails{
				From:    "noreply@fpinnova.es",
				ReplyTo: "support@fpinnova.es",
			},
		},
		Appearance: AppearanceSettings{
			Branding: Branding{AppName: "FP Innova"},
			Colors: ColorScheme{
				Primary:       "#2563eb",
				Secondary:     "#1e40af",
				Accent:        "#3b82f6",
				HeaderBg:      "#1e3a8a",
				SidebarBg:     "#f0f9ff",
				TextPrimary:   "#111827",
				TextSecondary: "#4b5563",
			},
		},
		Views: ViewSettings{
			DefaultViews: DefaultViews{Projects: "grid", Users: "grid", Convocatorias: "grid"},
			DisplayOptions: DisplayOptions{
				ShowDescription: true,
				ShowMetadata:    true,
				ShowThumbnails:  true,
				ItemsPerPage:    12,
			},
			DashboardLayout: DashboardLayout{
				ShowStats:             true,
				ShowRecentActivity:    true,
				ShowUpcomingDeadlines: true,
				ShowQuickActions:      true,
			},
		},
		Reviews: ReviewSettings{},
		Help: HelpSettings{
			Enabled:  true,
			HelpURLs: map[string]string{},
		},
	}
}

// DefaultMessagePermissions allows every role pair except messages sent by guests
func DefaultMessagePermissions() []MessagePermission {
	perms := make([]MessagePermission, 0, len(Roles)*len(Roles))
	for _, from := range Roles {
		for _, to := range Roles {
			perms = append(perms, MessagePermission{FromRole: from, ToRole: to, Allowed: from != RoleGuest})
		}
	}
	return perms
}

// NotificationRolePermissions maps role to notification type to enabled.
// Missing entries are enabled.
type NotificationRolePermissions map[string]map[string]bool

// Allows reports whether role may receive notifications of type t
func (p NotificationRolePermissions) Allows(role, t string) bool {
	types, ok := p[role]
	if !ok {
		return true
	}
	allowed, ok := types[t]
	return !ok || allowed
}
