// Package domain defines the record types shared by the jobtrail core.
//
// This package contains type definitions, closed enumerations and sentinel
// errors only. Every other internal package imports domain; domain imports
// nothing internal.
//
// Key constraints:
//   - Money is integer cents (Cents), never float
//   - Stage and EventType are closed sets; Parse* rejects anything else
//   - Confidence is always clamped to [0, 1] before it is stored
//   - Times are UTC; optional times are pointers
package domain
