// Package core contains the shared contracts of the client kit: configuration,
// the module requirement table, the error taxonomy and the collaborator
// interfaces. Lower-level packages depend on core; core must not depend on
// transport or storage adapters.
package core
