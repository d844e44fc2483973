package policy

// BuiltinPolicies returns the built-in catalog admission policies.
func BuiltinPolicies() []Policy {
	return []Policy{
		itemNamingPolicy(),
		librarySourcePolicy(),
		snapshotVersionPolicy(),
		planServicesPolicy(),
	}
}

// itemNamingPolicy flags symbolic names outside the usual character set.
func itemNamingPolicy() Policy {
	return Policy{
		Name:        "item-naming",
		Description: "Symbolic names use letters, digits, dots, dashes and underscores",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		Rego: `package blueprint.catalog.naming

import rego.v1

deny contains violation if {
	name := input.item.symbolic_name
	not regex.match("^[A-Za-z0-9][A-Za-z0-9._/-]*$", name)
	violation := {
		"message": sprintf("symbolic name '%s' must start with a letter or digit and contain only letters, digits, '.', '_', '-' or '/'", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	name := input.item.symbolic_name
	count(name) > 128
	violation := {
		"message": sprintf("symbolic name '%s' is longer than 128 characters", [name]),
		"severity": "error",
	}
}
`,
	}
}

// librarySourcePolicy requires libraries to be fetched over https.
func librarySourcePolicy() Policy {
	return Policy{
		Name:        "library-source",
		Description: "Library URLs must use https",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"security", "libraries"},
		Rego: `package blueprint.catalog.libraries

import rego.v1

deny contains violation if {
	some lib in input.item.libraries
	lib.url
	not startswith(lib.url, "https://")
	violation := {
		"message": sprintf("library %s is not fetched over https", [lib.url]),
		"severity": "error",
	}
}
`,
	}
}

// snapshotVersionPolicy warns about unreleased versions.
func snapshotVersionPolicy() Policy {
	return Policy{
		Name:        "snapshot-version",
		Description: "Warns when an item is registered with a SNAPSHOT version",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"versioning"},
		Rego: `package blueprint.catalog.versions

import rego.v1

deny contains violation if {
	endswith(input.item.version, "-SNAPSHOT")
	violation := {
		"message": sprintf("item %s uses a snapshot version", [input.item.id]),
		"severity": "warning",
	}
}
`,
	}
}

// planServicesPolicy checks that entity and template plans declare services.
func planServicesPolicy() Policy {
	return Policy{
		Name:        "plan-services",
		Description: "Entity and template items must declare at least one service",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"plans"},
		Rego: `package blueprint.catalog.plans

import rego.v1

deny contains violation if {
	input.item.kind in {"entity", "template"}
	input.plan
	not input.plan.services
	violation := {
		"message": sprintf("%s item %s has no services", [input.item.kind, input.item.id]),
		"severity": "error",
	}
}
`,
	}
}
