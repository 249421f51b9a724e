package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ServiceAccount holds the fields we need from a Firebase service account JSON key.
type ServiceAccount struct {
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

// FirebaseProject returns the configured project ID, falling back to the one
// embedded in the service account file.
func (c *Config) FirebaseProject() (string, error) {
	if c.FirebaseProjectID != "" {
		return c.FirebaseProjectID, nil
	}
	if c.FirebaseCredentialsFile == "" {
		return "", fmt.Errorf("FIREBASE_PROJECT_ID or FIREBASE_CREDENTIALS_FILE must be set")
	}
	raw, err := os.ReadFile(c.FirebaseCredentialsFile)
	if err != nil {
		return "", fmt.Errorf("read firebase credentials: %w", err)
	}
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return "", fmt.Errorf("parse firebase credentials: %w", err)
	}
	if sa.ProjectID == "" {
		return "", fmt.Errorf("firebase credentials carry no project_id")
	}
	return sa.ProjectID, nil
}
