// Package attr encodes the attribute lists exchanged with local services.
//
// A message is a sequence of name/value pairs, each written as
// "name\x00value\x00", and ends with an empty name ("\x00"). Values are
// either strings or decimal integers. Readers declare the fields they
// expect in order, so a reply with missing, extra, or reordered fields is
// a protocol error.
package attr
