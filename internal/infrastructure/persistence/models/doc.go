// Package models contains GORM persistence models. Domain entities stay free
// of ORM tags; each model maps to one table and converts with ToDomain /
// FromDomain.
//
// - base.go: shared id/version/owner columns
// - loyalty.go: programs, enrollments and the append-only transaction log
// - booking.go: read-only views of tables owned by the scheduling subsystem
package models
