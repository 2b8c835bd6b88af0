package credential

import "time"

// Policy holds the per-service rotation parameters. Keeping them in one
// lookup table keyed by service name avoids per-call-site branching on
// provider names.
type Policy struct {
	FrequencyDays int
	AutoRotate    bool
	MaxRetries    int
	GracePeriod   time.Duration
}

// DefaultPolicies returns the rotation policy table for the upstream
// services the platform authenticates against. Frequencies follow each
// provider's key-lifetime guidance; providers without a self-service
// credential API stay on manual rotation.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		"stripe":  {FrequencyDays: 90, AutoRotate: true, MaxRetries: 3, GracePeriod: 10 * time.Minute},
		"twilio":  {FrequencyDays: 60, AutoRotate: true, MaxRetries: 3, GracePeriod: 10 * time.Minute},
		"duffel":  {FrequencyDays: 180, AutoRotate: false, MaxRetries: 2, GracePeriod: 30 * time.Minute},
		"amadeus": {FrequencyDays: 365, AutoRotate: false, MaxRetries: 2, GracePeriod: 30 * time.Minute},
		"openai":  {FrequencyDays: 90, AutoRotate: true, MaxRetries: 3, GracePeriod: 10 * time.Minute},
	}
}

// PolicyFor looks up a service's policy in the table, falling back to a
// conservative manual-rotation default for unknown services.
func PolicyFor(policies map[string]Policy, service string) Policy {
	if p, ok := policies[service]; ok {
		return p
	}
	return Policy{FrequencyDays: 90, AutoRotate: false, MaxRetries: 2, GracePeriod: 30 * time.Minute}
}
