// Package backend defines the contract between the sweep engine and the
// models it evaluates, along with the registry that names them. Models may
// run in-process (Func, package builtin) or as external simulators
// (package command).
package backend
