// Package reembed regenerates the vectors of indexed chunks, typically after
// switching to a new embedding model.
//
// Documents are visited oldest first. A document's chunks are embedded
// together and then deleted and recreated with the new vectors, so a
// document never mixes vectors from two models, though the store as a whole
// does until the run completes.
package reembed
