package enrich

// OrgSummary builds the organization cost summary document from the
// /api/v1/billing/costs/{org_id} response.
func OrgSummary(raw map[string]any, orgID string, t Target) (Document, error) {
	src, err := NormalizeCosts(raw)
	if err != nil {
		if se, ok := err.(*SchemaError); ok {
			se.Context = "organization " + orgID + " summary"
		}
		return Document{}, err
	}

	src["org_id"] = orgID
	src["api"] = t.Endpoint
	src["@timestamp"] = Timestamp(t.Timestamp)
	return Document{Index: t.Index, Source: src}, nil
}
