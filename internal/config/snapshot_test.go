package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

func minimalRaw() *Raw {
	raw := &Raw{}
	raw.Control.UpdateIntervalSeconds = 1
	raw.Devices = map[string]map[string]RawDevice{
		"Flower/front": {
			"heater_1": RawDevice{
				Type: "heater", Board: "board-a", Channel: 0,
				PIDEnabled: true, PIDSetpoints: map[string]int{"heating": 0},
			},
			"exhaust_fan": RawDevice{
				Type: "exhaust_fan", Board: "board-a", Channel: 1,
			},
		},
	}
	return raw
}

func TestResolveBuildsSortedDeviceList(t *testing.T) {
	snap, err := Resolve(minimalRaw())
	require.NoError(t, err)
	require.Len(t, snap.Devices, 2)
	assert.Equal(t, "exhaust_fan", snap.Devices[0].Key.Name)
	assert.Equal(t, "heater_1", snap.Devices[1].Key.Name)
}

func TestResolveRejectsDuplicateChannel(t *testing.T) {
	raw := minimalRaw()
	raw.Devices["Flower/front"]["co2"] = RawDevice{Type: "co2", Board: "board-a", Channel: 0}

	_, err := Resolve(raw)
	require.Error(t, err)
}

func TestResolveRejectsLightWithPID(t *testing.T) {
	raw := minimalRaw()
	raw.Devices["Flower/front"]["light_1"] = RawDevice{
		Type: "light", Board: "board-a", Channel: 5, PIDEnabled: true,
	}
	_, err := Resolve(raw)
	require.Error(t, err)
}

func TestResolveRejectsHeatingAboveCooling(t *testing.T) {
	raw := minimalRaw()
	heating, cooling := 26.0, 24.0
	raw.ClimatePhases = map[string]RawClimate{
		"Flower/front": {
			Setpoints: map[string]RawSetpoint{
				"DAY": {Heating: &heating, Cooling: &cooling},
			},
		},
	}
	_, err := Resolve(raw)
	require.Error(t, err)
}

func TestResolveDefaultsUpdateInterval(t *testing.T) {
	raw := minimalRaw()
	raw.Control.UpdateIntervalSeconds = 0
	snap, err := Resolve(raw)
	require.NoError(t, err)
	assert.Equal(t, "1s", snap.UpdateInterval.String())
}

func TestParseZoneRejectsMalformed(t *testing.T) {
	_, err := parseZone("not-a-zone")
	require.Error(t, err)

	z, err := parseZone("Flower/front")
	require.NoError(t, err)
	assert.Equal(t, model.ZoneKey{Location: "Flower", Cluster: "front"}, z)
}
