// Package ent contains the generated entity client for the relational
// store (RelStore). Run `go generate ./ent` after editing ent/schema/*.go.
package ent

//go:generate go run -mod=mod entgo.io/ent/cmd/ent generate ./schema
