package domain

import (
	pstrings "jurisync/pkg/platform/strings"
)

// AffaireCluster groups the decisions belonging to one legal matter across
// instances (first instance, appeal, cassation). Identity is the opaque ID;
// clusters are merged, never split.
//
// Invariant: every member key appears in at most one cluster at any time.
// Merge is a set union, so re-running the clusterer on every import cycle
// converges on the same clusters regardless of record order.
type AffaireCluster struct {
	ID string `json:"_id"`

	MemberKeys    []string `json:"memberKeys"`
	Numbers       []string `json:"numbers"`
	Dates         []string `json:"dates"`
	Jurisdictions []string `json:"jurisdictions"`

	NumberToKey          map[string]string `json:"numberToKey"`
	NumberToDate         map[string]string `json:"numberToDate"`
	NumberToJurisdiction map[string]string `json:"numberToJurisdiction"`

	DecattID string `json:"decattId,omitempty"`
}

// NewAffaireCluster returns an empty cluster with the given id and
// initialized maps.
func NewAffaireCluster(id string) *AffaireCluster {
	return &AffaireCluster{
		ID:                   id,
		NumberToKey:          make(map[string]string),
		NumberToDate:         make(map[string]string),
		NumberToJurisdiction: make(map[string]string),
	}
}

// AddMember records one decision's identifiers into the cluster. Adding the
// same member twice is a no-op.
func (c *AffaireCluster) AddMember(key, number, date, jurisdiction string) {
	c.MemberKeys = pstrings.Union(c.MemberKeys, []string{key})
	c.Numbers = pstrings.Union(c.Numbers, []string{number})
	c.Dates = pstrings.Union(c.Dates, []string{date})
	c.Jurisdictions = pstrings.Union(c.Jurisdictions, []string{jurisdiction})

	if number != "" {
		if _, ok := c.NumberToKey[number]; !ok && key != "" {
			c.NumberToKey[number] = key
		}
		if _, ok := c.NumberToDate[number]; !ok && date != "" {
			c.NumberToDate[number] = date
		}
		if _, ok := c.NumberToJurisdiction[number]; !ok && jurisdiction != "" {
			c.NumberToJurisdiction[number] = jurisdiction
		}
	}
}

// Merge unions other into c. Arrays are deduplicated, maps keep the entry
// already held by c on key collision. other is not mutated; the caller is
// expected to delete it after re-pointing its members.
func (c *AffaireCluster) Merge(other *AffaireCluster) {
	if other == nil {
		return
	}

	c.MemberKeys = pstrings.Union(c.MemberKeys, other.MemberKeys)
	c.Numbers = pstrings.Union(c.Numbers, other.Numbers)
	c.Dates = pstrings.Union(c.Dates, other.Dates)
	c.Jurisdictions = pstrings.Union(c.Jurisdictions, other.Jurisdictions)

	for number, key := range other.NumberToKey {
		if _, ok := c.NumberToKey[number]; !ok {
			c.NumberToKey[number] = key
		}
	}
	for number, date := range other.NumberToDate {
		if _, ok := c.NumberToDate[number]; !ok {
			c.NumberToDate[number] = date
		}
	}
	for number, jurisdiction := range other.NumberToJurisdiction {
		if _, ok := c.NumberToJurisdiction[number]; !ok {
			c.NumberToJurisdiction[number] = jurisdiction
		}
	}

	if c.DecattID == "" {
		c.DecattID = other.DecattID
	}
}

// Clone returns a structural copy of the cluster. Used by stores so callers
// never alias store-held state.
func (c *AffaireCluster) Clone() *AffaireCluster {
	if c == nil {
		return nil
	}
	out := NewAffaireCluster(c.ID)
	out.DecattID = c.DecattID
	out.MemberKeys = append([]string(nil), c.MemberKeys...)
	out.Numbers = append([]string(nil), c.Numbers...)
	out.Dates = append([]string(nil), c.Dates...)
	out.Jurisdictions = append([]string(nil), c.Jurisdictions...)
	for k, v := range c.NumberToKey {
		out.NumberToKey[k] = v
	}
	for k, v := range c.NumberToDate {
		out.NumberToDate[k] = v
	}
	for k, v := range c.NumberToJurisdiction {
		out.NumberToJurisdiction[k] = v
	}
	return out
}

// HasMember reports whether key already belongs to the cluster.
func (c *AffaireCluster) HasMember(key string) bool {
	return pstrings.Contains(c.MemberKeys, key)
}
