package octoprint

import (
	"fmt"
	"strconv"
	"strings"
)

// ConnectionParams are the per-request printer settings slicers pass in the
// X-Api-Key header as semicolon-separated key=value pairs, e.g.
// "host=10.0.0.7;pass=12345678;ams_mapping=0,1".
type ConnectionParams struct {
	Host                 string
	User                 string
	Pass                 string
	Timelapse            bool
	BedType              string
	BedLevelling         bool
	FlowCalibration      bool
	VibrationCalibration bool
	LayerInspect         bool
	AMSMapping           []int
}

// ParseAPIKey decodes the header value. Host and pass are mandatory; all
// other settings default to the values a bare print job would use.
func ParseAPIKey(raw string) (*ConnectionParams, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty api key")
	}
	kv := make(map[string]string)
	for _, entry := range strings.Split(raw, ";") {
		parts := strings.Split(entry, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed api key entry %q", entry)
		}
		kv[parts[0]] = parts[1]
	}
	if kv["host"] == "" || kv["pass"] == "" {
		return nil, fmt.Errorf("api key must carry host and pass")
	}

	p := &ConnectionParams{
		Host:                 kv["host"],
		User:                 defaultString(kv, "user", "bblp"),
		Pass:                 kv["pass"],
		Timelapse:            defaultBool(kv, "timelapse", false),
		BedType:              defaultString(kv, "bed_type", "auto"),
		BedLevelling:         defaultBool(kv, "bed_levelling", true),
		FlowCalibration:      defaultBool(kv, "flow_calibration", true),
		VibrationCalibration: defaultBool(kv, "vibration_calibration", true),
		LayerInspect:         defaultBool(kv, "layer_inspect", true),
		AMSMapping:           []int{},
	}
	if raw := kv["ams_mapping"]; raw != "" {
		for _, field := range strings.Split(raw, ",") {
			slot, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("bad ams_mapping entry %q", field)
			}
			p.AMSMapping = append(p.AMSMapping, slot)
		}
	}
	return p, nil
}

func defaultString(kv map[string]string, key, fallback string) string {
	if v, ok := kv[key]; ok && v != "" {
		return v
	}
	return fallback
}

func defaultBool(kv map[string]string, key string, fallback bool) bool {
	v, ok := kv[key]
	if !ok {
		return fallback
	}
	return v == "true"
}
