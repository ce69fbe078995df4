package types

import "time"

// CredentialReference is a named pointer to secret material: which store to
// ask and what to ask it for. The retrieval params are opaque to the
// runtime except for {{placeholder}} template expansion; the secret itself
// is never stored here. A reference is treated as immutable while a call
// that resolved it is in flight.
type CredentialReference struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	TenantID  string `gorm:"size:64;index:idx_credential_refs_scope" json:"tenant_id"`
	ProjectID string `gorm:"size:64;index:idx_credential_refs_scope" json:"project_id"`

	Name    string            `gorm:"size:128" json:"name"`
	StoreID string            `gorm:"size:64" json:"store_id"`
	Params  map[string]string `gorm:"serializer:json" json:"params,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scope returns the tenant/project the reference belongs to.
func (r *CredentialReference) Scope() Scope {
	return Scope{TenantID: r.TenantID, ProjectID: r.ProjectID}
}
