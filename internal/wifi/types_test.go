package wifi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIfType(t *testing.T) {
	tests := []struct {
		in   string
		want IfType
	}{
		{"station", IfTypeStation},
		{"STA", IfTypeStation},
		{" managed ", IfTypeStation},
		{"ap", IfTypeAP},
		{"master", IfTypeAP},
		{"ibss", IfTypeAdhoc},
		{"monitor", IfTypeMonitor},
		{"", IfTypeUnspecified},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIfType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseIfType("mesh")
	assert.Error(t, err)
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "station", IfTypeStation.String())
	assert.Equal(t, "iftype(42)", IfType(42).String())
	assert.Equal(t, "success", ConnectSuccess.String())
	assert.Equal(t, "status(9)", ConnectStatus(9).String())
	assert.Equal(t, "assoc", TimeoutAssoc.String())
	assert.Equal(t, "reason(9)", TimeoutReason(9).String())
}

func TestNewScanRequest(t *testing.T) {
	a := NewScanRequest("WiFi", "Office")
	b := NewScanRequest()

	assert.NotEqual(t, a.ID, b.ID, "requests MUST have distinct IDs")
	assert.Equal(t, [][]byte{[]byte("WiFi"), []byte("Office")}, a.SSIDs)
	assert.Empty(t, b.SSIDs)
	assert.False(t, a.CreatedAt.IsZero())
}
