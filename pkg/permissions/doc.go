// Package permissions provides the static permission catalog.
//
// A permission is an immutable (resource, action-set) capability grant.
// Other packages reference permissions by ID only; the catalog is the
// single place a permission's definition lives.
package permissions
