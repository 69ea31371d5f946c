// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `Loader.build` calls `validateStruct` right after the document has been
// unmarshalled over the defaults and indirections have been resolved.
// `LoadBootstrap` does the same for process settings.  Any failure aborts
// the load, so the Manager never swaps in a snapshot with, say, a zero
// request timeout or a malformed endpoint URL.
//
// Rules in use today: `required`, `url`, `hostname_port`, `gte`, and
// `oneof`.  Cross-field checks (DSN versus server) are deliberately absent;
// the connection factory decides that at the point of use.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.

package config

import "github.com/go-playground/validator/v10"

//
// validator instance (package-level singleton)
//

var v = validator.New(validator.WithRequiredStructEnabled())

//
// public API
//

// validateStruct returns the validation errors for s, or nil on success.
func validateStruct(s any) error {
	return v.Struct(s)
}
