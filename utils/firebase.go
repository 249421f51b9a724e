// utils/firebase.go
package utils

import (
	"context"
	"fmt"

	"unmute/config"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// FirebaseInit initializes the Firebase App used for Firestore and Auth.
func FirebaseInit(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	projectID, err := cfg.FirebaseProject()
	if err != nil {
		return nil, fmt.Errorf("firebase: %w", err)
	}

	var opts []option.ClientOption
	if cfg.FirebaseCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: error initializing app: %w", err)
	}
	return app, nil
}
