package offline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindcare-go/internal/offline"
)

func ids(entries []*offline.HelplineEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestHelplines_EmergencyOnFirstUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	dir := f.helplines()

	got := dir.GetEmergencyHelplines(ctx, "India")
	require.Len(t, got, 5)
	for i, e := range got {
		assert.Equal(t, offline.CategoryCrisis, e.Category)
		assert.LessOrEqual(t, e.Priority, 5)
		if i > 0 {
			assert.LessOrEqual(t, got[i-1].Priority, e.Priority)
		}
	}
	assert.Equal(t, "in_kiran_1", got[0].ID)

	stored, err := f.db.FindAllHelplines(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 12, "first read seeds the bundled directory")
	assert.Equal(t, offline.SourceBundled, stored[0].Source)
}

func TestHelplines_GetByLocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	dir := f.helplines()
	require.NoError(t, dir.Initialize(ctx))
	require.NoError(t, dir.Initialize(ctx))

	tests := []struct {
		name    string
		country string
		state   string
		want    []string
	}{
		{"state match", "India", "Maharashtra", []string{"in_aasra_1"}},
		{"state without entries falls back to national", "India", "Goa",
			[]string{"in_kiran_1", "in_vandrevala_1", "in_youthline_1", "in_women_helpline_1"}},
		{"default country", "", "Delhi", []string{"in_sumaitri_1"}},
		{"other country", "United States", "", []string{"us_988_1"}},
		{"unknown country", "Atlantis", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(dir.GetByLocation(ctx, tt.country, tt.state)))
		})
	}

	all := dir.GetByLocation(ctx, "India", "")
	assert.Len(t, all, 10)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Priority, all[i].Priority)
	}
}

func TestHelplines_CategorySearchAndStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	dir := f.helplines()

	assert.Equal(t, []string{"in_roshni_1", "in_parivarthan_1"}, ids(dir.GetByCategory(ctx, offline.CategoryCounseling)))
	assert.Len(t, dir.GetByCategory(ctx, offline.CategoryCrisis), 8)

	assert.Equal(t, []string{"in_sneha_1"}, ids(dir.Search(ctx, "tamil", "India")))
	assert.Contains(t, ids(dir.Search(ctx, "SUICIDE", "")), "in_aasra_1")
	assert.Len(t, dir.Search(ctx, "", "India"), 10)
	assert.Empty(t, dir.Search(ctx, "tamil", "United Kingdom"))

	assert.Len(t, dir.GetAll(ctx), 12)

	st := dir.Statistics(ctx)
	assert.Equal(t, 12, st.Total)
	assert.Equal(t, 10, st.ByCountry["India"])
	assert.Equal(t, 8, st.ByCategory[offline.CategoryCrisis])
	assert.Equal(t, 10, st.Available247)
	assert.Equal(t, 3, st.Government)
	assert.Equal(t, 9, st.Private)
	assert.Equal(t, 1, st.ByLanguage["Spanish"])
}

func TestHelplines_UpdateDirectory(t *testing.T) {
	ctx := context.Background()
	remote := map[string]any{"helplines": []map[string]any{
		{"id": "in_tele_manas", "name": "Tele MANAS", "phone": "14416", "country": "India", "category": "crisis", "priority": 1, "available": "24/7"},
		{"id": "bad_category", "name": "X", "phone": "1", "country": "India", "category": "other"},
		{"id": "", "name": "No id", "phone": "1", "country": "India", "category": "support"},
	}}

	t.Run("offline is skipped", func(t *testing.T) {
		f := newFixture(t, false)
		res, err := f.helplines().UpdateDirectory(ctx)
		require.NoError(t, err)
		assert.Equal(t, offline.UpdateResult{Skipped: offline.SkipOffline}, res)
	})

	t.Run("download failure leaves directory untouched", func(t *testing.T) {
		f := newFixture(t, true)
		dir := f.helplines()
		require.NoError(t, dir.Initialize(ctx))
		f.api.Fail("GET "+offline.EndpointHelplines, errors.New("500"))

		_, err := dir.UpdateDirectory(ctx)
		assert.Error(t, err)
		assert.Len(t, dir.GetAll(ctx), 12)
	})

	t.Run("empty download is rejected", func(t *testing.T) {
		f := newFixture(t, true)
		dir := f.helplines()
		require.NoError(t, dir.Initialize(ctx))
		f.api.Respond("GET "+offline.EndpointHelplines, map[string]any{"helplines": []any{}})

		_, err := dir.UpdateDirectory(ctx)
		assert.Error(t, err)
		assert.Len(t, dir.GetAll(ctx), 12)
	})

	t.Run("replaces directory and survives re-initialize", func(t *testing.T) {
		f := newFixture(t, true)
		dir := f.helplines()
		require.NoError(t, dir.Initialize(ctx))
		f.api.Respond("GET "+offline.EndpointHelplines, remote)

		res, err := dir.UpdateDirectory(ctx)
		require.NoError(t, err)
		assert.Equal(t, offline.UpdateResult{Updated: true, Entries: 1}, res)

		all := dir.GetAll(ctx)
		require.Len(t, all, 1)
		assert.Equal(t, offline.NationalState, all[0].State)
		assert.Equal(t, offline.SourceRemote, all[0].Source)

		fresh := f.helplines()
		require.NoError(t, fresh.Initialize(ctx))
		assert.Equal(t, []string{"in_tele_manas"}, ids(fresh.GetAll(ctx)))
	})
}

func TestHelplines_CheckForUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	dir := f.helplines()
	require.NoError(t, dir.Initialize(ctx))

	st, err := dir.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.True(t, st.NeedsUpdate, "bundled data always needs an update")
	assert.Nil(t, st.LastUpdate)

	f.api.Respond("GET "+offline.EndpointHelplines, map[string]any{"helplines": []map[string]any{
		{"id": "h1", "name": "H", "phone": "1", "country": "India", "category": "support"},
	}})
	_, err = dir.UpdateDirectory(ctx)
	require.NoError(t, err)

	f.clock.Advance(10 * 24 * time.Hour)
	st, err = dir.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.False(t, st.NeedsUpdate)
	require.NotNil(t, st.DaysSinceUpdate)
	assert.Equal(t, 10, *st.DaysSinceUpdate)

	f.clock.Advance(21 * 24 * time.Hour)
	st, err = dir.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.True(t, st.NeedsUpdate)
	assert.Equal(t, 31, *st.DaysSinceUpdate)
}

func TestHelplines_StorageFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	dir := offline.NewHelplineDirectory(failingDatabase{}, f.api, f.conn, f.clock, f.logger)

	assert.Error(t, dir.Initialize(ctx))
	assert.Len(t, dir.GetByLocation(ctx, "India", ""), 5)
	assert.Equal(t, []string{"us_988_1", "uk_samaritans_1"}, ids(dir.GetByLocation(ctx, "United States", "")))
	assert.Len(t, dir.GetByCategory(ctx, offline.CategoryCrisis), 5)
	assert.Len(t, dir.GetEmergencyHelplines(ctx, "India"), 5)
	assert.Empty(t, dir.Search(ctx, "kiran", "India"))
	assert.Len(t, dir.GetAll(ctx), 12)
	assert.Zero(t, dir.Statistics(ctx).Total)

	_, err := dir.CheckForUpdates(ctx)
	assert.Error(t, err)
}

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"011-23389090", "+91 11-23389090"},
		{"91-9820466726", "+91 9820466726"},
		{"1800-599-0019", "1800-599-0019"},
		{"Online Only", "Online Only"},
		{"116 123", "116 123"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, offline.FormatPhone(tt.in))
		})
	}
}

func TestFormat(t *testing.T) {
	bundled := offline.BundledHelplines()
	byID := make(map[string]*offline.HelplineEntry)
	for _, e := range bundled {
		byID[e.ID] = e
	}

	kiran := offline.Format(byID["in_kiran_1"])
	assert.True(t, kiran.IsEmergency)
	assert.Equal(t, []string{"crisis", "24x7", "government", "hindi", "english", "regional"}, kiran.Tags)
	assert.Equal(t, "1800-599-0019", kiran.FormattedPhone)

	sumaitri := offline.Format(byID["in_sumaitri_1"])
	assert.False(t, sumaitri.IsEmergency, "priority 4 is not an emergency line")
	assert.Equal(t, "+91 11-23389090", sumaitri.FormattedPhone)

	roshni := offline.Format(byID["in_roshni_1"])
	assert.Contains(t, roshni.Tags, "limited-hours")
	assert.Contains(t, roshni.Tags, "private")

	bundled[0].Name = "changed"
	assert.NotEqual(t, "changed", offline.BundledHelplines()[0].Name, "bundled data is copied")
}
