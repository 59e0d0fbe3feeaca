package credentials

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTwitterValidateReportsFirstMissingKey(t *testing.T) {
	creds := Twitter{ConsumerKey: "ck"}
	err := creds.Validate()
	require.Error(t, err)

	var missing *ErrMissing
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "TWITTER_CONSUMER_SECRET", missing.Key)

	creds = Twitter{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessSecret: "as"}
	require.NoError(t, creds.Validate())
}

func TestLinkedInValidate(t *testing.T) {
	require.Error(t, LinkedIn{}.Validate())
	require.NoError(t, LinkedIn{AccessToken: "token"}.Validate())
}

func TestInstagramValidate(t *testing.T) {
	err := Instagram{AccessToken: "token"}.Validate()
	var missing *ErrMissing
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "INSTAGRAM_BUSINESS_ACCOUNT_ID", missing.Key)

	require.NoError(t, Instagram{AccessToken: "token", BusinessAccountID: "1"}.Validate())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TWITTER_CONSUMER_KEY", "ck")
	t.Setenv("LINKEDIN_ACCESS_TOKEN", "lt")
	t.Setenv("IMAGE_HOST_URL", "https://img.example.com")

	creds := FromEnv()
	require.Equal(t, "ck", creds.Twitter.ConsumerKey)
	require.Equal(t, "lt", creds.LinkedIn.AccessToken)
	require.Equal(t, "https://img.example.com", creds.ImageHost.BaseURL)
	require.Empty(t, creds.Scheduler.BaseURL)
}
