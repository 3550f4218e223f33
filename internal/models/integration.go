package models

// IntegrationType represents the transport kind of an integration
type IntegrationType string

const (
	IntegrationTypeMQTT         IntegrationType = "mqtt"
	IntegrationTypeMQTTExternal IntegrationType = "mqtt_external"
	IntegrationTypeMQTTHosted   IntegrationType = "mqtt_hosted"
)

// MQTTIntegrationTypes lists the transport kinds handled by the ingestion core
var MQTTIntegrationTypes = []IntegrationType{
	IntegrationTypeMQTT,
	IntegrationTypeMQTTExternal,
	IntegrationTypeMQTTHosted,
}

// IntegrationStatus represents the lifecycle status of an integration
type IntegrationStatus string

const (
	IntegrationStatusActive   IntegrationStatus = "active"
	IntegrationStatusInactive IntegrationStatus = "inactive"
)

// Integration represents a tenant's configured connection to one broker.
// Rows are created and edited by the configuration UI; this core only reads
// them.
type Integration struct {
	OrganizationModel

	Name     string            `json:"name" db:"name"`
	Type     IntegrationType   `json:"integrationType" db:"integration_type"`
	Settings Variables         `json:"settings" db:"settings"`
	Status   IntegrationStatus `json:"status" db:"status"`
}
