package geo

import (
	"math"
	"testing"

	"tradeproof/internal/utils"
	"tradeproof/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingValidate(t *testing.T) {
	tests := []struct {
		name    string
		reading Reading
		wantErr bool
	}{
		{name: "valid", reading: Reading{Latitude: 51.5, Longitude: -0.12, Accuracy: utils.Float64Ptr(5)}},
		{name: "poles and antimeridian", reading: Reading{Latitude: -90, Longitude: 180}},
		{name: "latitude out of range", reading: Reading{Latitude: 91, Longitude: 0}, wantErr: true},
		{name: "longitude out of range", reading: Reading{Latitude: 0, Longitude: -181}, wantErr: true},
		{name: "negative accuracy", reading: Reading{Latitude: 0, Longitude: 0, Accuracy: utils.Float64Ptr(-1)}, wantErr: true},
		{name: "infinite accuracy", reading: Reading{Latitude: 51.5, Longitude: -0.1, Accuracy: utils.Float64Ptr(math.Inf(1))}, wantErr: true},
		{name: "infinite latitude", reading: Reading{Latitude: math.Inf(-1), Longitude: 0}, wantErr: true},
		{name: "infinite longitude", reading: Reading{Latitude: 0, Longitude: math.Inf(1)}, wantErr: true},
		{name: "nan accuracy", reading: Reading{Latitude: 0, Longitude: 0, Accuracy: utils.Float64Ptr(math.NaN())}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reading.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.KindValidation, types.KindOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func gpsItem(lat, lon float64) *types.EvidenceItem {
	return &types.EvidenceItem{GPSLatitude: utils.Float64Ptr(lat), GPSLongitude: utils.Float64Ptr(lon)}
}

func TestSummarizeSameSite(t *testing.T) {
	items := []*types.EvidenceItem{
		gpsItem(51.50000, -0.12000),
		gpsItem(51.50010, -0.12010),
		{Description: "no gps"},
	}

	s := Summarize(items)
	require.NotNil(t, s)
	assert.Equal(t, 2, s.Readings)
	assert.True(t, s.Consistent)
	assert.Less(t, s.MaxSpreadMeters, 20.0)
	assert.Contains(t, s.Describe(), "2 GPS readings, all within")
}

func TestSummarizeSpreadOut(t *testing.T) {
	s := Summarize([]*types.EvidenceItem{gpsItem(51.5, -0.12), gpsItem(51.6, -0.12)})
	require.NotNil(t, s)
	assert.False(t, s.Consistent)
	assert.Greater(t, s.MaxSpreadMeters, 5000.0)
	assert.Contains(t, s.Describe(), "review locations")
}

func TestSummarizeWithoutGPS(t *testing.T) {
	var s *Summary = Summarize([]*types.EvidenceItem{{Description: "text only"}})
	assert.Nil(t, s)
	assert.Equal(t, "No GPS readings were captured for this job.", s.Describe())
}
