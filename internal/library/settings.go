package library

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openshelf/openshelf-go/internal/rest"
)

// Settings manages the site-wide settings singleton through the non-fluent
// resource facade; the operations are plain CRUD with nothing to chain.
type Settings struct {
	manager *rest.ResourceManager
}

// SiteSettings is the backend's settings document.
type SiteSettings struct {
	SiteName         string `json:"siteName"`
	SupportEmail     string `json:"supportEmail"`
	SubscriptionFee  string `json:"subscriptionFee"`
	TrialDays        int    `json:"trialDays"`
	MaintenanceMode  bool   `json:"maintenanceMode"`
	AnnouncementText string `json:"announcementText"`
}

// settingsID is the fixed id of the settings singleton row.
const settingsID = "1"

// NewSettings builds the settings service.
func NewSettings(client *rest.Client) *Settings {
	return &Settings{manager: client.Manager("settings")}
}

// Get fetches the settings document.
func (s *Settings) Get(ctx context.Context) (SiteSettings, error) {
	raw, err := s.manager.GetOne(ctx, settingsID)
	if err != nil {
		return SiteSettings{}, err
	}
	var settings SiteSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return SiteSettings{}, fmt.Errorf("library: decode settings: %w", err)
	}
	return settings, nil
}

// Update replaces the settings document; admin only, enforced server-side.
func (s *Settings) Update(ctx context.Context, settings SiteSettings) (SiteSettings, error) {
	raw, err := s.manager.Update(ctx, settingsID, settings)
	if err != nil {
		return SiteSettings{}, err
	}
	var updated SiteSettings
	if err := json.Unmarshal(raw, &updated); err != nil {
		return SiteSettings{}, fmt.Errorf("library: decode updated settings: %w", err)
	}
	return updated, nil
}
