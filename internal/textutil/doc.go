// Package textutil holds small text helpers shared by the metadata decoders:
// tolerant XML sidecar preparation and fixed-width string fields.
package textutil
