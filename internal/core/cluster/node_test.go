package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseRole(t *testing.T) {
	for raw, want := range map[uint8]NodeRole{0: Voter, 1: StandBy, 2: Spare} {
		role, err := ParseRole(raw)
		require.NoError(t, err)
		assert.Equal(t, want, role)
	}

	for _, raw := range []uint8{3, 7, 255} {
		_, err := ParseRole(raw)
		require.Error(t, err, "role %d should be rejected", raw)
		var invalid *InvalidNodeError
		assert.ErrorAs(t, err, &invalid)
	}
}

func TestNodeRole_String(t *testing.T) {
	assert.Equal(t, "voter", Voter.String())
	assert.Equal(t, "stand-by", StandBy.String())
	assert.Equal(t, "spare", Spare.String())
	assert.Equal(t, "unknown role", NodeRole(9).String())
}

func TestNodeRole_YAMLRejectsInvalid(t *testing.T) {
	var nodes []NodeInfo
	err := yaml.Unmarshal([]byte("- ID: 1\n  Address: 127.0.0.1:9001\n  Role: 5\n"), &nodes)
	require.Error(t, err)
}

func TestNodeInfo_Validate(t *testing.T) {
	valid := []string{
		"127.0.0.1:9001",
		"[::1]:9001",
		"/var/run/veldt.sock",
		"@veldt-abstract",
		"unix:/tmp/x.sock",
	}
	for _, addr := range valid {
		node := NodeInfo{ID: 1, Address: addr, Role: Voter}
		assert.NoError(t, node.Validate(), "address %q should be valid", addr)
	}

	invalid := []string{
		"",
		"not-an-address",
		"localhost:9001", // hostname, not an ip
		"127.0.0.1",      // missing port
		"unix:",
		"127.0.0.1:9001\x00trailing",
	}
	for _, addr := range invalid {
		node := NodeInfo{ID: 1, Address: addr, Role: Voter}
		err := node.Validate()
		require.Error(t, err, "address %q should be invalid", addr)
		var invalidErr *InvalidNodeError
		assert.ErrorAs(t, err, &invalidErr)
	}
}

func TestValidateNodes_Duplicates(t *testing.T) {
	dupID := []NodeInfo{
		{ID: 1, Address: "127.0.0.1:9001", Role: Voter},
		{ID: 1, Address: "127.0.0.1:9002", Role: Voter},
	}
	require.Error(t, validateNodes(dupID))

	dupAddr := []NodeInfo{
		{ID: 1, Address: "127.0.0.1:9001", Role: Voter},
		{ID: 2, Address: "127.0.0.1:9001", Role: StandBy},
	}
	require.Error(t, validateNodes(dupAddr))

	ok := []NodeInfo{
		{ID: 1, Address: "127.0.0.1:9001", Role: Voter},
		{ID: 2, Address: "127.0.0.1:9002", Role: StandBy},
		{ID: 3, Address: "@spare", Role: Spare},
	}
	require.NoError(t, validateNodes(ok))
}
