package exchange

// Role is the part the local node plays in an exchange.
type Role string

const (
	RoleProvider Role = "provider"
	RoleConsumer Role = "consumer"
)

// Counterpart returns the opposite role.
func (r Role) Counterpart() Role {
	if r == RoleProvider {
		return RoleConsumer
	}
	return RoleProvider
}

// ResolveBilateralRole decides the local role for a bilateral exchange: the
// local node is the provider only when its endpoint is the provider's.
func ResolveBilateralRole(localEndpoint, providerEndpoint string) Role {
	if providerEndpoint == localEndpoint {
		return RoleProvider
	}
	return RoleConsumer
}

// ResolveEcosystemRole decides the local role for an ecosystem exchange. The
// consumer match is checked first.
func ResolveEcosystemRole(localEndpoint, providerEndpoint, consumerEndpoint string) (Role, error) {
	switch localEndpoint {
	case consumerEndpoint:
		return RoleConsumer, nil
	case providerEndpoint:
		return RoleProvider, nil
	default:
		return "", ErrRoleResolutionFailed
	}
}
