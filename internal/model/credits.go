package model

import (
	"encoding/json"
	"fmt"
)

// CreditRole names one of the artist-credit buckets of a track. The numeric
// value is the bucket's index in Credits; the order runs from the most
// general role to the most specific one.
type CreditRole int

// Credit roles. RoleVersion is only meaningful on version tracks.
const (
	RoleMain CreditRole = iota
	RoleFeature
	RoleVersion
	RoleProducer

	numRoles
)

// String returns the role's JSON name.
func (r CreditRole) String() string {
	switch r {
	case RoleMain:
		return "main"
	case RoleFeature:
		return "feature"
	case RoleVersion:
		return "version"
	case RoleProducer:
		return "producer"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// RolesFor returns the ordered roles that apply to a track: main, feature,
// version, producer for version tracks and main, feature, producer otherwise.
func RolesFor(version bool) []CreditRole {
	if version {
		return []CreditRole{RoleMain, RoleFeature, RoleVersion, RoleProducer}
	}
	return []CreditRole{RoleMain, RoleFeature, RoleProducer}
}

// Credits holds one CreditSet per role, indexed by CreditRole.
type Credits [numRoles]CreditSet

// Bucket returns the set for role r.
func (c *Credits) Bucket(r CreditRole) *CreditSet {
	return &c[r]
}

// Total returns the number of credited artists across all buckets.
func (c *Credits) Total() int {
	n := 0
	for i := range c {
		n += c[i].Len()
	}
	return n
}

// MarshalJSON encodes the credits as an object keyed by role name.
func (c Credits) MarshalJSON() ([]byte, error) {
	out := make(map[string]CreditSet, numRoles)
	for r := RoleMain; r < numRoles; r++ {
		if c[r].Len() > 0 {
			out[r.String()] = c[r]
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an object keyed by role name.
func (c *Credits) UnmarshalJSON(data []byte) error {
	var in map[string]CreditSet
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	for r := RoleMain; r < numRoles; r++ {
		c[r] = in[r.String()]
	}
	return nil
}
