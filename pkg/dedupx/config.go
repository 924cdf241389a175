package dedupx

// Config controls which fields participate in content hashing.
type Config struct {
	// IgnoreFields are map keys / struct fields excluded from the hash at
	// any nesting depth. Identifiers and timestamps never carry semantic
	// content, so two copies of the same physical action hash identically.
	IgnoreFields []string

	// AttachmentFields name the keys holding attachment lists. Attachment
	// content never participates in the hash.
	AttachmentFields []string

	// IncludeAttachments folds the attachment count (not byte content) into
	// the hash, so two submissions differing only in photo count differ.
	IncludeAttachments bool
}

// DefaultConfig returns the standard hashing configuration.
func DefaultConfig() Config {
	return Config{
		IgnoreFields: []string{
			"id", "created_at", "updated_at", "createdAt", "updatedAt",
		},
		AttachmentFields:   []string{"media_paths", "attachments", "images"},
		IncludeAttachments: true,
	}
}

// clone returns a deep copy so callers can never mutate internal policy by
// reference.
func (c Config) clone() Config {
	out := c
	out.IgnoreFields = append([]string(nil), c.IgnoreFields...)
	out.AttachmentFields = append([]string(nil), c.AttachmentFields...)
	return out
}
