package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		resourceIDPolicy(),
		packagePathPolicy(),
		knownTestbedsPolicy(),
	}
}

// resourceIDPolicy rejects resource ids that cannot name a package directory.
func resourceIDPolicy() Policy {
	return Policy{
		Name:        "resource-id",
		Description: "Resource ids must be non-empty path-safe names",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"request", "paths"},
		Rego: `package softfire.admission.resource_id

import rego.v1

deny contains violation if {
	input.request.resource_id == ""
	violation := {"message": "resource_id must not be empty"}
}

deny contains violation if {
	id := input.request.resource_id
	id != ""
	not regex.match("^[A-Za-z0-9][A-Za-z0-9_.-]*$", id)
	violation := {"message": sprintf("resource_id '%s' may only contain letters, digits, '.', '_' and '-'", [id])}
}

deny contains violation if {
	id := input.request.resource_id
	contains(id, "..")
	violation := {"message": sprintf("resource_id '%s' must not contain '..'", [id])}
}
`,
	}
}

// packagePathPolicy keeps user package references inside the owner's directory.
func packagePathPolicy() Policy {
	return Policy{
		Name:        "package-path",
		Description: "Package references must stay inside the owner's upload directory",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"request", "paths"},
		Rego: `package softfire.admission.package_path

import rego.v1

deny contains violation if {
	name := input.request.file_name
	contains(name, "..")
	violation := {"message": sprintf("file_name '%s' must not contain '..'", [name])}
}

deny contains violation if {
	name := input.request.file_name
	startswith(name, "/")
	violation := {"message": sprintf("file_name '%s' must be relative", [name])}
}
`,
	}
}

// knownTestbedsPolicy warns about placement sites that are not in the testbed table.
func knownTestbedsPolicy() Policy {
	return Policy{
		Name:        "known-testbeds",
		Description: "Placement sites should be known testbeds",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"request", "placement"},
		Rego: `package softfire.admission.testbeds

import rego.v1

deny contains violation if {
	count(input.context.known_testbeds) > 0
	some unit, sites in input.request.testbeds
	some site in sites
	not lower(site) in {lower(t) | some t in input.context.known_testbeds}
	violation := {"message": sprintf("unit '%s' is placed on unknown testbed '%s'", [unit, site])}
}
`,
	}
}
