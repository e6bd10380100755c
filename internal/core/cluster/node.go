// Package cluster holds the versioned registry of cluster member records a
// client consults to locate and dial nodes of a replicated store.
package cluster

import (
	"database/sql/driver"
	"fmt"
	"net/netip"
	"strings"

	"gopkg.in/yaml.v3"
)

// NodeRole is a member's participation class in the cluster.
type NodeRole uint8

const (
	// Voter replicates the log and counts toward quorum.
	Voter NodeRole = 0
	// StandBy replicates the log but does not vote.
	StandBy NodeRole = 1
	// Spare neither replicates nor votes.
	Spare NodeRole = 2
)

// ParseRole converts a raw role integer, rejecting out-of-range values.
// Invalid integers are a decode error, never clamped.
func ParseRole(value uint8) (NodeRole, error) {
	switch role := NodeRole(value); role {
	case Voter, StandBy, Spare:
		return role, nil
	default:
		return 0, &InvalidNodeError{Reason: fmt.Sprintf("invalid role value: %d", value)}
	}
}

func (r NodeRole) String() string {
	switch r {
	case Voter:
		return "voter"
	case StandBy:
		return "stand-by"
	case Spare:
		return "spare"
	default:
		return "unknown role"
	}
}

// MarshalYAML encodes the role as its raw integer.
func (r NodeRole) MarshalYAML() (interface{}, error) {
	return uint8(r), nil
}

// UnmarshalYAML decodes and re-validates the raw integer.
func (r *NodeRole) UnmarshalYAML(value *yaml.Node) error {
	var raw uint8
	if err := value.Decode(&raw); err != nil {
		return err
	}
	role, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Value implements driver.Valuer for the SQL-backed store.
func (r NodeRole) Value() (driver.Value, error) {
	return int64(r), nil
}

// Scan implements sql.Scanner, rejecting out-of-range values on read.
func (r *NodeRole) Scan(src any) error {
	raw, ok := src.(int64)
	if !ok {
		return &InvalidNodeError{Reason: fmt.Sprintf("invalid role column type: %T", src)}
	}
	if raw < 0 || raw > 255 {
		return &InvalidNodeError{Reason: fmt.Sprintf("invalid role value: %d", raw)}
	}
	role, err := ParseRole(uint8(raw))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// NodeInfo describes one cluster member.
type NodeInfo struct {
	ID      uint64   `yaml:"ID" db:"id"`
	Address string   `yaml:"Address" db:"address"`
	Role    NodeRole `yaml:"Role" db:"role"`
}

func (n NodeInfo) String() string {
	return fmt.Sprintf("node %d (%s, %s)", n.ID, n.Address, n.Role)
}

// Validate checks the record for well-formedness. The address must be one of:
// a parseable ip:port, a filesystem-path unix socket, an abstract (@-prefixed)
// unix socket, or an explicit unix:-prefixed form.
func (n NodeInfo) Validate() error {
	if n.Address == "" {
		return &InvalidNodeError{Reason: "address is required"}
	}
	if strings.ContainsRune(n.Address, 0) {
		return &InvalidNodeError{Reason: "address contains an embedded NUL"}
	}
	if strings.HasPrefix(n.Address, "@") || strings.HasPrefix(n.Address, "/") {
		return nil
	}
	if rest, found := strings.CutPrefix(n.Address, "unix:"); found {
		if rest == "" {
			return &InvalidNodeError{Reason: "empty unix socket path"}
		}
		return nil
	}
	if _, err := netip.ParseAddrPort(n.Address); err != nil {
		return &InvalidNodeError{Reason: fmt.Sprintf("invalid address: %s", n.Address)}
	}
	return nil
}

// validateNodes checks every record and rejects duplicate ids or addresses
// across the whole set.
func validateNodes(nodes []NodeInfo) error {
	seenIDs := make(map[uint64]struct{}, len(nodes))
	seenAddrs := make(map[string]struct{}, len(nodes))

	for _, node := range nodes {
		if err := node.Validate(); err != nil {
			return err
		}
		if _, ok := seenIDs[node.ID]; ok {
			return &InvalidNodeError{Reason: fmt.Sprintf("duplicate node ID: %d", node.ID)}
		}
		seenIDs[node.ID] = struct{}{}
		if _, ok := seenAddrs[node.Address]; ok {
			return &InvalidNodeError{Reason: fmt.Sprintf("duplicate node address: %s", node.Address)}
		}
		seenAddrs[node.Address] = struct{}{}
	}
	return nil
}
