package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fp-innova/internal/models"
	"fp-innova/internal/rbac"
	"fp-innova/internal/repository"
	"fp-innova/pkg/validator"
)

// SettingsStore persists versioned settings documents
type SettingsStore interface {
	Get(ctx context.Context, key string) (*models.SettingsRecord, error)
	Save(ctx context.Context, key string, value []byte, expectedVersion int, updatedBy *uint) (*models.SettingsRecord, error)
}

// SettingsDocument is one settings key as exchanged over the API. Version 0
// means nothing is stored yet and the value holds the defaults.
type SettingsDocument struct {
	Key       string          `json:"key"`
	Version   int             `json:"version"`
	Value     json.RawMessage `json:"value"`
	UpdatedBy *uint           `json:"updatedBy,omitempty"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

// decodedSettings is the typed, validated view of every key
type decodedSettings struct {
	system        models.SystemSettings
	rbac          rbac.Table
	messaging     []models.MessagePermission
	notifications models.NotificationRolePermissions
}

// SettingsService reads and writes the settings keys and keeps a typed cache
// that the other services consult
type SettingsService struct {
	repo   SettingsStore
	policy *rbac.Policy
	audit  *AuditService

	mu     sync.RWMutex
	cache  *decodedSettings
	loaded bool
}

// NewSettingsService creates a new settings service
func NewSettingsService(repo SettingsStore, policy *rbac.Policy, audit *AuditService) *SettingsService {
	return &SettingsService{repo: repo, policy: policy, audit: audit}
}

// Load reads every key, falls back to defaults for missing or invalid rows and
// installs the stored permission table
func (s *SettingsService) Load(ctx context.Context) error {
	decoded := &decodedSettings{}
	for _, key := range models.SettingsKeys {
		doc, err := s.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to load settings %s: %w", key, err)
		}
		if err := decodeInto(decoded, key, doc.Value); err != nil {
			slog.Warn("Stored settings are invalid, using defaults", "key", key, "error", err)
			def, _ := defaultSettings(key)
			_ = decodeInto(decoded, key, def)
		}
	}
	s.install(decoded)
	return nil
}

func (s *SettingsService) install(d *decodedSettings) {
	s.mu.Lock()
	s.cache = d
	s.loaded = true
	s.mu.Unlock()
	s.policy.Replace(d.rbac)
}

// Get returns one key. System settings written by an older schema are
// returned migrated.
func (s *SettingsService) Get(ctx context.Context, key string) (*SettingsDocument, error) {
	def, err := defaultSettings(key)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return &SettingsDocument{Key: key, Value: def}, nil
	}
	if err != nil {
		return nil, err
	}
	value := json.RawMessage(rec.Value)
	if key == models.SettingsKeySystem {
		migrated, err := migrateSystemSettings(rec.Value)
		if err == nil {
			if value, err = json.Marshal(migrated); err != nil {
				return nil, err
			}
		}
	}
	updatedAt := rec.UpdatedAt
	return &SettingsDocument{
		Key:       key,
		Version:   rec.Version,
		Value:     value,
		UpdatedBy: rec.UpdatedBy,
		UpdatedAt: &updatedAt,
	}, nil
}

// GetAll returns every key
func (s *SettingsService) GetAll(ctx context.Context) (map[string]*SettingsDocument, error) {
	docs := make(map[string]*SettingsDocument, len(models.SettingsKeys))
	for _, key := range models.SettingsKeys {
		doc, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		docs[key] = doc
	}
	return docs, nil
}

// Update validates and stores value under key. version must equal the stored
// version, otherwise ErrVersionConflict is returned.
func (s *SettingsService) Update(ctx context.Context, actor *models.User, key string, version int, value json.RawMessage) (*SettingsDocument, error) {
	if _, err := defaultSettings(key); err != nil {
		return nil, err
	}
	if !s.canUpdate(actor, key) {
		return nil, ErrForbidden
	}

	s.mu.RLock()
	next := decodedSettings{}
	if s.cache != nil {
		next = *s.cache
	}
	s.mu.RUnlock()
	if err := decodeInto(&next, key, value); err != nil {
		return nil, err
	}
	normalized, err := encodeKey(&next, key)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.Save(ctx, key, normalized, version, &actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: settings %s changed since version %d", ErrVersionConflict, key, version)
		}
		return nil, err
	}
	if !s.isLoaded() {
		if err := s.Load(ctx); err != nil {
			return nil, err
		}
	} else {
		s.install(&next)
	}

	s.audit.Log(ctx, &actor.ID, AuditUpdate, "settings", key,
		fmt.Sprintf("Updated settings %s to version %d", key, rec.Version), nil)
	slog.Info("Settings updated", "key", key, "version", rec.Version, "user_id", actor.ID)

	updatedAt := rec.UpdatedAt
	return &SettingsDocument{Key: key, Version: rec.Version, Value: normalized, UpdatedBy: rec.UpdatedBy, UpdatedAt: &updatedAt}, nil
}

// canUpdate checks the key-specific permission. The permission table needs
// manage_settings on settings; the other keys need edit on system.
func (s *SettingsService) canUpdate(actor *models.User, key string) bool {
	if key == models.SettingsKeyRBAC {
		return s.policy.HasPermission(actor.Role, rbac.ActionManageSettings, rbac.ResourceSettings)
	}
	return s.policy.HasPermission(actor.Role, rbac.ActionEdit, rbac.ResourceSystem)
}

func (s *SettingsService) isLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *SettingsService) snapshot(ctx context.Context) *decodedSettings {
	if !s.isLoaded() {
		if err := s.Load(ctx); err != nil {
			slog.Error("Failed to load settings, using defaults", "error", err)
			d := &decodedSettings{}
			for _, key := range models.SettingsKeys {
				def, _ := defaultSettings(key)
				_ = decodeInto(d, key, def)
			}
			return d
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache
}

// System returns the typed system settings
func (s *SettingsService) System(ctx context.Context) models.SystemSettings {
	return s.snapshot(ctx).system
}

// Reviews returns whether admins and coordinators may review
func (s *SettingsService) Reviews(ctx context.Context) models.ReviewSettings {
	return s.snapshot(ctx).system.Reviews
}

// MessagePermissions returns the role-to-role messaging matrix
func (s *SettingsService) MessagePermissions(ctx context.Context) []models.MessagePermission {
	return s.snapshot(ctx).messaging
}

// NotificationPermissions returns the role-level notification switches
func (s *SettingsService) NotificationPermissions(ctx context.Context) models.NotificationRolePermissions {
	return s.snapshot(ctx).notifications
}

// EmailNotificationsEnabled is the global email switch
func (s *SettingsService) EmailNotificationsEnabled(ctx context.Context) bool {
	return s.snapshot(ctx).system.General.EmailNotifications
}

func defaultSettings(key string) (json.RawMessage, error) {
	var v any
	switch key {
	case models.SettingsKeySystem:
		v = models.DefaultSystemSettings()
	case models.SettingsKeyRBAC:
		v = rbac.DefaultTable()
	case models.SettingsKeyMessaging:
		v = models.DefaultMessagePermissions()
	case models.SettingsKeyNotifications:
		v = models.NotificationRolePermissions{}
	default:
		return nil, fmt.Errorf("%w: settings key %q", repository.ErrNotFound, key)
	}
	return json.Marshal(v)
}

// migrateSystemSettings decodes raw over the defaults so fields added by newer
// schema versions get their default values
func migrateSystemSettings(raw []byte) (models.SystemSettings, error) {
	settings := models.DefaultSystemSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return settings, fieldError("value", "JSON no válido")
	}
	if settings.SchemaVersion < models.SettingsSchemaVersion {
		settings.SchemaVersion = models.SettingsSchemaVersion
	}
	if settings.Help.HelpURLs == nil {
		settings.Help.HelpURLs = map[string]string{}
	}
	return settings, nil
}

func decodeInto(d *decodedSettings, key string, raw json.RawMessage) error {
	switch key {
	case models.SettingsKeySystem:
		settings, err := migrateSystemSettings(raw)
		if err != nil {
			return err
		}
		if err := validator.ValidateStruct(settings); err != nil {
			return err
		}
		d.system = settings

	case models.SettingsKeyRBAC:
		var table rbac.Table
		if err := json.Unmarshal(raw, &table); err != nil {
			return fieldError("value", "JSON no válido")
		}
		if err := table.Validate(); err != nil {
			return fieldError("value", err.Error())
		}
		d.rbac = table

	case models.SettingsKeyMessaging:
		var perms []models.MessagePermission
		if err := json.Unmarshal(raw, &perms); err != nil {
			return fieldError("value", "JSON no válido")
		}
		for i := range perms {
			if err := validator.ValidateStruct(perms[i]); err != nil {
				return fieldError(fmt.Sprintf("value[%d]", i), err.Error())
			}
		}
		d.messaging = perms

	case models.SettingsKeyNotifications:
		perms := models.NotificationRolePermissions{}
		if err := json.Unmarshal(raw, &perms); err != nil {
			return fieldError("value", "JSON no válido")
		}
		for role, types := range perms {
			if !models.IsValidRole(role) {
				return fieldError("value."+role, "rol desconocido")
			}
			for t := range types {
				if validator.ValidateVar(t, "oneof=project_assigned project_status review_assigned amendment_requested message_received") != nil {
					return fieldError("value."+role+"."+t, "tipo de notificación desconocido")
				}
			}
		}
		d.notifications = perms

	default:
		return fmt.Errorf("%w: settings key %q", repository.ErrNotFound, key)
	}
	return nil
}

func encodeKey(d *decodedSettings, key string) ([]byte, error) {
	switch key {
	case models.SettingsKeySystem:
		return json.Marshal(d.system)
	case models.SettingsKeyRBAC:
		return json.Marshal(d.rbac)
	case models.SettingsKeyMessaging:
		return json.Marshal(d.messaging)
	default:
		return json.Marshal(d.notifications)
	}
}
