package redis

// Key prefixes.
const (
	prefixTenant = "callrelay:subs:"     // + tenant ID, JSON subscription array
	sTenantIndex = "callrelay:s:tenants" // set of tenants with subscriptions
)

// tenantKey returns the primary key for a tenant's subscription set.
func tenantKey(tenantID string) string {
	return prefixTenant + tenantID
}
