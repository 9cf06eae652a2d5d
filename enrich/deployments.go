package enrich

import (
	"errors"
	"fmt"
)

// Deployments builds one document per entry of the deployment inventory
// response, in the order the API returned them, along with the
// descriptors used to fetch itemized and chart data.
//
// An entry whose costs can't be normalized is left out of the documents
// but still yields a descriptor when it carries an id and a name. The
// returned error joins every SchemaError met on the way.
func Deployments(raw map[string]any, t Target) ([]Document, []Deployment, error) {
	entries, ok := raw["deployments"].([]any)
	if !ok {
		return nil, nil, schemaErr("deployments", "deployment inventory", raw)
	}

	var (
		docs []Document
		deps []Deployment
		errs []error
	)
	for i, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			errs = append(errs, schemaErr(fmt.Sprintf("deployments[%d]", i), "deployment inventory", raw))
			continue
		}

		id, idOK := entry["deployment_id"].(string)
		name, nameOK := entry["deployment_name"].(string)
		switch {
		case !idOK:
			errs = append(errs, schemaErr("deployment_id", fmt.Sprintf("deployments[%d]", i), entry))
		case !nameOK:
			errs = append(errs, schemaErr("deployment_name", "deployment "+id, entry))
		default:
			deps = append(deps, Deployment{ID: id, Name: name})
		}

		src, err := NormalizeCosts(entry)
		if err != nil {
			if se, ok := err.(*SchemaError); ok {
				se.Context = fmt.Sprintf("deployments[%d]", i)
			}
			errs = append(errs, err)
			continue
		}
		src["api"] = t.Endpoint
		src["@timestamp"] = Timestamp(t.Timestamp)
		docs = append(docs, Document{Index: t.Index, Source: src})
	}

	return docs, deps, errors.Join(errs...)
}
