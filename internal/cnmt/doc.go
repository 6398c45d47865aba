// Package cnmt decodes content metadata in both of its encodings: the binary
// packaged record found inside meta content, and the legacy ".cnmt.xml"
// sidecar shipped in older digital packages.
package cnmt
