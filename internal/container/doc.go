// Package container classifies game package files and parses their
// plaintext partition layouts: digital packages (PFS0), cartridge images with
// HFS0 partitions, and homebrew executables with an asset section.
//
// Encrypted content archives found inside these containers are opened
// through the ContentOpener capability, which hides key handling and
// decryption from the rest of the pipeline.
package container
