package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func validAd() Ad {
	return Ad{
		ID:               "ad-1",
		AdAccountID:      "ad-account-1",
		AdvertiserHandle: "acme",
		Title:            "Summer Sale",
		MediaURL:         "https://cdn.example.com/a.jpg",
		MediaType:        MediaTypeImage,
		DailyBudget:      decimal.NewFromInt(50),
	}
}

func TestAdAccountValidate(t *testing.T) {
	require := require.New(t)

	acct := AdAccount{
		Name:        "Acme",
		Timezone:    "Europe/Dublin",
		DailyBudget: decimal.NewFromInt(100),
		Currency:    "USD",
	}
	require.NoError(acct.Validate())

	bad := acct
	bad.Name = ""
	require.Error(bad.Validate())

	bad = acct
	bad.Timezone = ""
	require.Error(bad.Validate())

	bad = acct
	bad.Currency = ""
	require.Error(bad.Validate())

	bad = acct
	bad.DailyBudget = decimal.NewFromInt(-1)
	require.Error(bad.Validate())
}

func TestAdValidate(t *testing.T) {
	require := require.New(t)

	ad := validAd()
	require.NoError(ad.Validate())

	bad := validAd()
	bad.MediaType = "audio"
	require.Error(bad.Validate())

	bad = validAd()
	bad.Title = ""
	require.Error(bad.Validate())

	bad = validAd()
	bad.ScheduledStart = 2000
	bad.ScheduledEnd = 1000
	require.Error(bad.Validate(), "window must not end before it starts")

	ok := validAd()
	ok.ScheduledStart = 1000
	ok.ScheduledEnd = 1000
	require.NoError(ok.Validate(), "a single-instant window is valid")
}

func TestAdCloneIsDeep(t *testing.T) {
	require := require.New(t)

	ad := validAd()
	ad.Events.Clicks = []int64{1, 2, 3}
	ad.TargetLocations = []string{"Dublin"}

	cp := ad.Clone()
	cp.Events.Clicks[0] = 99
	cp.TargetLocations[0] = "Cork"

	require.Equal(int64(1), ad.Events.Clicks[0])
	require.Equal("Dublin", ad.TargetLocations[0])
}
