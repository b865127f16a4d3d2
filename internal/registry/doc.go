// Package registry holds the static description of every synchronized table:
// its columns, its foreign-key edges to other entities, the natural key used
// for remote upserts, and its dependency rank.
//
// The registry is pure configuration. It is compiled once at process start
// (from a CUE declaration, see CompileFile) and is immutable afterwards.
// A malformed registry is a ConfigurationError and the engine must not run.
package registry
