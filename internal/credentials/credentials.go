package credentials

import (
	"fmt"

	"herald/internal/models"
	"herald/pkg/config"
)

// ErrMissing indicates that a platform credential required for publishing is
// not configured.
type ErrMissing struct {
	Platform models.Platform
	Key      string
}

func (e *ErrMissing) Error() string {
	return fmt.Sprintf("missing %s credential: %s", e.Platform, e.Key)
}

// Twitter holds OAuth 1.0a user-context credentials.
type Twitter struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Validate returns a typed error for the first missing field.
func (t Twitter) Validate() error {
	switch {
	case t.ConsumerKey == "":
		return &ErrMissing{Platform: models.PlatformTwitter, Key: "TWITTER_CONSUMER_KEY"}
	case t.ConsumerSecret == "":
		return &ErrMissing{Platform: models.PlatformTwitter, Key: "TWITTER_CONSUMER_SECRET"}
	case t.AccessToken == "":
		return &ErrMissing{Platform: models.PlatformTwitter, Key: "TWITTER_ACCESS_TOKEN"}
	case t.AccessSecret == "":
		return &ErrMissing{Platform: models.PlatformTwitter, Key: "TWITTER_ACCESS_SECRET"}
	}
	return nil
}

// LinkedIn holds a member-context bearer token.
type LinkedIn struct {
	AccessToken string
}

func (l LinkedIn) Validate() error {
	if l.AccessToken == "" {
		return &ErrMissing{Platform: models.PlatformLinkedIn, Key: "LINKEDIN_ACCESS_TOKEN"}
	}
	return nil
}

// Instagram holds a Graph API token and the business account that owns the
// published media.
type Instagram struct {
	AccessToken       string
	BusinessAccountID string
}

func (i Instagram) Validate() error {
	switch {
	case i.AccessToken == "":
		return &ErrMissing{Platform: models.PlatformInstagram, Key: "INSTAGRAM_ACCESS_TOKEN"}
	case i.BusinessAccountID == "":
		return &ErrMissing{Platform: models.PlatformInstagram, Key: "INSTAGRAM_BUSINESS_ACCOUNT_ID"}
	}
	return nil
}

// ImageHost holds the image-hosting collaborator configuration. Instagram
// publishing depends on it: the Graph API only accepts publicly reachable
// image URLs.
type ImageHost struct {
	BaseURL string
	APIKey  string
}

// Scheduler holds the delegated-scheduling service configuration. Empty
// BaseURL disables the status reconciler.
type Scheduler struct {
	BaseURL string
	APIKey  string
}

// Credentials is the read-only per-platform secret set, resolved once at
// startup and passed into each adapter at construction time.
type Credentials struct {
	Twitter   Twitter
	LinkedIn  LinkedIn
	Instagram Instagram
	ImageHost ImageHost
	Scheduler Scheduler
}

// FromEnv resolves all platform credentials from the environment.
func FromEnv() Credentials {
	return Credentials{
		Twitter: Twitter{
			ConsumerKey:    config.GetEnv("TWITTER_CONSUMER_KEY", ""),
			ConsumerSecret: config.GetEnv("TWITTER_CONSUMER_SECRET", ""),
			AccessToken:    config.GetEnv("TWITTER_ACCESS_TOKEN", ""),
			AccessSecret:   config.GetEnv("TWITTER_ACCESS_SECRET", ""),
		},
		LinkedIn: LinkedIn{
			AccessToken: config.GetEnv("LINKEDIN_ACCESS_TOKEN", ""),
		},
		Instagram: Instagram{
			AccessToken:       config.GetEnv("INSTAGRAM_ACCESS_TOKEN", ""),
			BusinessAccountID: config.GetEnv("INSTAGRAM_BUSINESS_ACCOUNT_ID", ""),
		},
		ImageHost: ImageHost{
			BaseURL: config.GetEnv("IMAGE_HOST_URL", ""),
			APIKey:  config.GetEnv("IMAGE_HOST_API_KEY", ""),
		},
		Scheduler: Scheduler{
			BaseURL: config.GetEnv("SCHEDULER_URL", ""),
			APIKey:  config.GetEnv("SCHEDULER_API_KEY", ""),
		},
	}
}
