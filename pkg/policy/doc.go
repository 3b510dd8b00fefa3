// Package policy evaluates operator-supplied Rego admission policies against
// deployment requests before they reach the orchestrator.
//
// Every policy declares a "deny" set in its package. Each element is either a
// string or an object with a "message" and an optional "severity". Violations
// of error or critical severity reject the request; the rest are returned as
// warnings.
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"/etc/softfire/policies"}); err != nil {
//	    return err
//	}
//	result, err := eng.Evaluate(ctx, &policy.Input{Request: req})
//
// Policies are read from .rego files (one policy per file, named after the
// file) and from JSON bundles. Loader.Watch reloads them when files change.
//
// # Built-in Policies
//
//   - resource-id: the resource id must be a path-safe name
//   - package-path: file_name must be relative and must not contain ".."
//   - known-testbeds: warns about placement sites missing from the testbed table
package policy
