package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "abc123_mac_aa_bb_cc_dd_ee_ff", Slugify("abc123_mac_AA:BB:CC:DD:EE:FF"))
	assert.Equal(t, "fw_home_arpa_cpu_usage", Slugify("fw.home.arpa CPU Usage"))
	assert.Equal(t, "wan_inbytes", Slugify("  WAN -- inbytes  "))
	assert.Equal(t, "", Slugify("::"))
}
