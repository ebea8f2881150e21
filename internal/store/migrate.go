package store

import (
	"encoding/json"
	"fmt"
)

// CurrentSettingsVersion is the schemaVersion written by this build.
const CurrentSettingsVersion = 1

type settingsDoc map[string]json.RawMessage

// settingsMigrations[i] upgrades a document from version i to i+1.
var settingsMigrations = []func(settingsDoc) error{
	migrateFlatProvider,
}

func decodeSettings(raw []byte) (Settings, error) {
	var doc settingsDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if doc == nil {
		return Settings{}, fmt.Errorf("decode settings: document is null")
	}

	version := 0
	if v, ok := doc["schemaVersion"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			return Settings{}, fmt.Errorf("decode schemaVersion: %w", err)
		}
	}
	if version > CurrentSettingsVersion {
		return Settings{}, fmt.Errorf("settings schema version %d is newer than supported %d", version, CurrentSettingsVersion)
	}
	for ; version < CurrentSettingsVersion; version++ {
		if err := settingsMigrations[version](doc); err != nil {
			return Settings{}, fmt.Errorf("migrate settings v%d: %w", version, err)
		}
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return Settings{}, fmt.Errorf("re-encode settings: %w", err)
	}
	var st Settings
	if err := json.Unmarshal(b, &st); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return normalizeSettings(st), nil
}

// migrateFlatProvider turns the version 0 shape, which held a single
// provider's apiKey/model/baseUrl at the top level, into the per-provider map.
func migrateFlatProvider(doc settingsDoc) error {
	defer func() { doc["schemaVersion"] = json.RawMessage("1") }()

	if _, ok := doc["providers"]; ok {
		return nil
	}

	var flat struct {
		Provider       ProviderName `json:"provider"`
		ActiveProvider ProviderName `json:"activeProvider"`
		APIKey         string       `json:"apiKey"`
		Model          string       `json:"model"`
		BaseURL        string       `json:"baseUrl"`
		AccountID      string       `json:"accountId"`
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}

	name := flat.Provider
	if name == "" {
		name = flat.ActiveProvider
	}
	if !name.Valid() {
		name = ProviderNaga
	}

	providers := defaultProviders()
	pc := providers[name]
	if flat.APIKey != "" {
		pc.APIKey = flat.APIKey
	}
	if flat.Model != "" {
		pc.Model = flat.Model
	}
	if flat.BaseURL != "" {
		pc.BaseURL = flat.BaseURL
	}
	if flat.AccountID != "" {
		pc.AccountID = flat.AccountID
	}
	providers[name] = pc

	encoded, err := json.Marshal(providers)
	if err != nil {
		return err
	}
	active, err := json.Marshal(name)
	if err != nil {
		return err
	}
	doc["providers"] = encoded
	doc["activeProvider"] = active
	for _, k := range []string{"provider", "apiKey", "model", "baseUrl", "accountId"} {
		delete(doc, k)
	}
	return nil
}
