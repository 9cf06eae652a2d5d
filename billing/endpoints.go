package billing

import "fmt"

// AccountEndpoint returns the account of the API key's owner.
const AccountEndpoint = "/api/v1/account"

func OrgCostsEndpoint(orgID string) string {
	return fmt.Sprintf("/api/v1/billing/costs/%s", orgID)
}

func DeploymentsEndpoint(orgID string) string {
	return OrgCostsEndpoint(orgID) + "/deployments"
}

func ItemizedEndpoint(orgID, deploymentID string) string {
	return fmt.Sprintf("%s/%s/items", DeploymentsEndpoint(orgID), deploymentID)
}

func ChartsEndpoint(orgID, deploymentID string) string {
	return fmt.Sprintf("%s/%s/charts", DeploymentsEndpoint(orgID), deploymentID)
}
