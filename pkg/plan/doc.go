// Package plan parses blueprint documents and turns them into specs.
//
// A Parser decodes YAML into an immutable Plan, compiling "$dsl:" strings
// into deferred values. A Platform registers plans as assembly templates and
// pairs each with an Instantiator; SpecInstantiator implementations create
// the entity, template, policy or configuration spec a catalog item asks for.
package plan
