// Package awsauth resolves, validates, and caches AWS credentials.
//
// A Manager owns one process-wide session, chosen by priority: explicit role
// assumption, static access keys, a named profile, then the default provider
// chain. Sessions are validated with one sts:GetCallerIdentity call on
// establishment and replaced before they enter a five minute expiry buffer.
// The package also classifies AWS API failures into the typed error kinds
// the rest of the dashboard propagates.
package awsauth
