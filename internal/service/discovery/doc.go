// Package discovery registers update packages found next to a base image as
// pending entries of its servicing history.
//
// Identifiers come from package file names: the name is split on every
// character that is not a letter or digit, and exactly one token must read
// KB followed by 6 to 8 digits (case-insensitive). No match and several
// distinct matches are both reported as errors for that package. Versions
// come from the XML manifest bundled inside each package.
package discovery
