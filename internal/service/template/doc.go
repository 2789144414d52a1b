// Package template stores reusable campaign content per owner.
//
// Templates are referenced by campaigns through template_id. The campaign
// service asks this package whether an id belongs to the caller before it
// writes the reference.
package template
