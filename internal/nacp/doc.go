// Package nacp decodes application control properties: the sixteen localized
// name/publisher entries and the display version string.
package nacp
