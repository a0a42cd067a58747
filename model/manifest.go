package model

import "time"

// ManifestVersion is written into every new manifest. Readers must accept
// older manifests with missing fields (treated as absent/zero).
const ManifestVersion = 2

// ProgramManifest records what inputs produced the last program for one
// variant. It is the input to the regeneration decision.
type ProgramManifest struct {
	GeneratedAt    time.Time `json:"generatedAt"`
	OwnerID        string    `json:"ownerId"`
	World          string    `json:"world"`
	Language       string    `json:"language"`
	Variant        string    `json:"variant"`
	RecordingCount int       `json:"recordingCount"`
	RecordingFiles []string  `json:"recordingFiles,omitempty"` // optional stronger comparison
	ProgramURL     string    `json:"programUrl"`
	Version        int       `json:"version"`

	// Error-manifest fields: written after a fatal run so automated
	// retriggers back off until RetryAfter.
	Error        bool       `json:"error,omitempty"`
	FailureCount int        `json:"failureCount,omitempty"`
	RetryAfter   *time.Time `json:"retryAfter,omitempty"`
}

// CoolingDown reports whether the circuit breaker is still live.
func (m *ProgramManifest) CoolingDown(now time.Time) bool {
	return m != nil && m.Error && m.RetryAfter != nil && now.Before(*m.RetryAfter)
}

// CombinedManifest holds both variants side by side in one storage object.
// Writers must only replace their own variant slot (read-modify-write).
type CombinedManifest struct {
	OwnerID   string           `json:"ownerId"`
	World     string           `json:"world"`
	Language  string           `json:"language"`
	Kids      *ProgramManifest `json:"kids,omitempty"`
	Parent    *ProgramManifest `json:"parent,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// VariantSlot returns a pointer to the slot for the given variant name,
// or nil for unknown variants.
func (c *CombinedManifest) VariantSlot(variant string) **ProgramManifest {
	switch variant {
	case "kids":
		return &c.Kids
	case "parent":
		return &c.Parent
	default:
		return nil
	}
}

// Merge writes m into its variant slot, preserving every other field of the
// combined manifest untouched.
func (c *CombinedManifest) Merge(m *ProgramManifest) {
	slot := c.VariantSlot(m.Variant)
	if slot == nil {
		return
	}
	*slot = m
	c.OwnerID = m.OwnerID
	c.World = m.World
	c.Language = m.Language
	c.UpdatedAt = time.Now()
}
